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
	"io"
	"net/http"

	"github.com/containerd/log"
)

// DefaultClient is a client with the default retry policy
var DefaultClient = NewClient()

// NewClient creates an HTTP client with the default retry policy
func NewClient() *http.Client {
	return &http.Client{
		Transport: NewTransport(nil),
	}
}

// Transport is an HTTP transport with retry policy
type Transport struct {
	// Base is the underlying HTTP transport to use.
	// If nil, http.DefaultTransport is used for round trips.
	Base http.RoundTripper

	// Policy returns a retry Policy to use for the request.
	// If nil, DefaultPolicy is used to determine if the request should be retried.
	Policy func() Policy
}

// NewTransport creates an HTTP Transport with the default retry policy
func NewTransport(base http.RoundTripper) *Transport {
	return &Transport{
		Base: base,
	}
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
// It relies on the configured Policy to determine if the request should be retried and to backoff.
// When the policy gives up on a response, the last response is returned as is,
// so that the caller can inspect its status code.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	policy := t.policy()
	attempt := 0
	for {
		resp, respErr := t.roundTrip(req)
		duration, err := policy.Retry(ctx, attempt, resp, respErr)
		if duration < 0 {
			if respErr != nil {
				if err == nil {
					err = respErr
				}
				return nil, err
			}
			return resp, nil
		}

		fields := log.Fields{
			"method":  req.Method,
			"url":     req.URL.Redacted(),
			"attempt": attempt + 1,
			"backoff": duration,
		}
		if respErr != nil {
			log.G(ctx).WithFields(fields).WithError(respErr).Debug("request failed, retrying")
		} else {
			fields["status"] = resp.StatusCode
			log.G(ctx).WithFields(fields).Debug("transient response, retrying")
			drain(resp)
		}

		// rewind the body if necessary
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}

		if err := sleep(ctx, duration); err != nil {
			return nil, err
		}
		attempt++
	}
}

func (t *Transport) roundTrip(req *http.Request) (*http.Response, error) {
	if t.Base == nil {
		return http.DefaultTransport.RoundTrip(req)
	}
	return t.Base.RoundTrip(req)
}

func (t *Transport) policy() Policy {
	if t.Policy == nil {
		return DefaultPolicy
	}
	return t.Policy()
}

// drain discards the remaining body so that the connection can be reused.
func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
