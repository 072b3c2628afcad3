/*
Copyright The ORAS Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"
)

// headerRetryAfter is the header key for Retry-After.
const headerRetryAfter = "Retry-After"

// Defaults of the retry policy.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 250 * time.Millisecond
	DefaultMaxDelay    = 4 * time.Second

	// DefaultMaxRetryAfter is the longest Retry-After a policy waits for.
	DefaultMaxRetryAfter = time.Minute
)

// DefaultPolicy is a policy with fine-tuned retry parameters.
// It makes at most 3 attempts and uses an exponential backoff with jitter.
var DefaultPolicy Policy = NewPolicy(DefaultMaxAttempts, DefaultBaseDelay, DefaultMaxDelay)

// DefaultPredicate is a predicate that retries on transient failures:
// network errors such as timeouts and connection resets, 5xx errors,
// 408 Request Timeout and 429 Too Many Requests.
// Other 4xx responses, including 401 Unauthorized, are not retried.
var DefaultPredicate Predicate = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		return IsTransient(err), err
	}

	switch resp.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true, nil
	}

	if resp.StatusCode == 0 || resp.StatusCode >= 500 {
		return true, nil
	}

	return false, nil
}

// DefaultBackoff is a backoff that uses an exponential backoff with jitter.
// It uses a base of 250ms, a factor of 2 and a jitter of 10%.
var DefaultBackoff Backoff = ExponentialBackoff(DefaultBaseDelay, 2, 0.1)

// Policy is a retry policy.
type Policy interface {
	// Retry returns the duration to wait before retrying the request.
	// The attempt is the zero-based number of the attempt that just
	// completed. A negative duration means the request should not be
	// retried.
	Retry(ctx context.Context, attempt int, resp *http.Response, err error) (time.Duration, error)
}

// Predicate is a function that returns true if the request should be retried.
type Predicate func(ctx context.Context, resp *http.Response, err error) (bool, error)

// Backoff is a function that returns the duration to wait before retrying the
// request. The attempt, is the next attempt number. The response is the
// response from the previous request, and may be nil.
type Backoff func(attempt int, resp *http.Response) time.Duration

// ExponentialBackoff returns a Backoff that uses an exponential backoff with
// jitter. The backoff is calculated as:
//
//	backoff * factor ^ attempt + rand.Int63n(jitter * backoff)
//
// The HTTP response is checked for a Retry-After header. If it is present, the
// requested delay is used as the backoff duration and jitter is applied.
func ExponentialBackoff(backoff time.Duration, factor int, jitter float64) Backoff {
	return func(attempt int, resp *http.Response) time.Duration {
		rand := rand.New(rand.NewSource(time.Now().UnixNano()))
		var spread time.Duration
		if j := int64(jitter * float64(backoff)); j > 0 {
			spread = time.Duration(rand.Int63n(j))
		}
		if d, ok := retryAfter(resp); ok {
			return d + spread
		}

		b := time.Duration(float64(backoff) * math.Pow(float64(factor), float64(attempt)))
		return b + spread
	}
}

// GenericPolicy is a generic retry policy.
type GenericPolicy struct {
	// Retryable is a predicate that returns true if the request should be
	// retried.
	Retryable Predicate

	// Backoff is a function that returns the duration to wait before retrying.
	Backoff Backoff

	// MinWait is the minimum duration to wait before retrying.
	MinWait time.Duration

	// MaxWait is the maximum duration to wait before retrying.
	// A delay requested by the server with Retry-After is not capped by
	// MaxWait.
	MaxWait time.Duration

	// MaxRetryAfter is the longest delay requested with Retry-After the
	// policy waits for. Longer requests are not retried.
	// If zero, any requested delay is waited for.
	MaxRetryAfter time.Duration

	// MaxAttempts is the maximum number of attempts, the first one included.
	MaxAttempts int
}

// NewPolicy returns a GenericPolicy making at most attempts attempts, with
// an exponential backoff starting at base, doubling, and capped at max.
func NewPolicy(attempts int, base, max time.Duration) *GenericPolicy {
	if attempts < 1 {
		attempts = 1
	}
	return &GenericPolicy{
		Retryable:     DefaultPredicate,
		Backoff:       ExponentialBackoff(base, 2, 0.1),
		MinWait:       base,
		MaxWait:       max,
		MaxRetryAfter: DefaultMaxRetryAfter,
		MaxAttempts:   attempts,
	}
}

// Retry returns the duration to wait before retrying the request.
// It returns -1 if the request should not be retried.
func (p *GenericPolicy) Retry(ctx context.Context, attempt int, resp *http.Response, err error) (time.Duration, error) {
	if attempt+1 >= p.MaxAttempts {
		return -1, err
	}
	if ok, err := p.Retryable(ctx, resp, err); !ok {
		return -1, err
	}
	backoff := p.Backoff(attempt, resp)
	if requested, ok := retryAfter(resp); ok {
		if p.MaxRetryAfter > 0 && requested > p.MaxRetryAfter {
			return -1, err
		}
		if backoff < requested {
			backoff = requested
		}
		return backoff, nil
	}
	if backoff < p.MinWait {
		backoff = p.MinWait
	}
	if p.MaxWait > 0 && backoff > p.MaxWait {
		backoff = p.MaxWait
	}
	return backoff, nil
}

// retryAfter returns the delay requested by a 429 or 503 response with a
// Retry-After header, given in seconds or as an HTTP date.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
	default:
		return 0, false
	}
	v := resp.Header.Get(headerRetryAfter)
	if v == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseInt(v, 10, 64); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if date, err := http.ParseTime(v); err == nil {
		if d := time.Until(date); d > 0 {
			return d, true
		}
	}
	return 0, false
}

// IsTransient reports whether err is a transient network failure worth
// retrying: timeouts, connection resets and refusals, and connections
// closed before a full response was read.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Do calls fn until it succeeds, the policy gives up, or ctx is done.
// Only the error of fn is passed to the policy.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p == nil {
		p = DefaultPolicy
	}
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		duration, retryErr := p.Retry(ctx, attempt, nil, err)
		if duration < 0 {
			if retryErr == nil {
				retryErr = err
			}
			return retryErr
		}
		if err := sleep(ctx, duration); err != nil {
			return fmt.Errorf("%w: last error: %v", err, retryErr)
		}
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
