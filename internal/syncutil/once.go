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

// Package syncutil provides synchronization helpers.
package syncutil

import "context"

// Once resolves a value at most once successfully. Concurrent callers wait
// for the resolution in flight. Failed resolutions are not kept: the next
// caller tries again.
type Once[T any] struct {
	value  T
	status chan bool
}

// NewOnce returns a Once with nothing resolved yet.
func NewOnce[T any]() *Once[T] {
	status := make(chan bool, 1)
	status <- true
	return &Once[T]{
		status: status,
	}
}

// Do resolves the value with f, unless already resolved. It returns true if
// f was called and succeeded, the value, and the error of f.
// Do returns the context error if ctx is done while waiting for another
// caller.
func (o *Once[T]) Do(ctx context.Context, f func() (T, error)) (first bool, value T, err error) {
	select {
	case _, pending := <-o.status:
		if !pending {
			return false, o.value, nil
		}
	case <-ctx.Done():
		return false, value, ctx.Err()
	}

	resolved := false
	defer func() {
		if !resolved {
			o.status <- true
		}
	}()
	v, err := f()
	if err != nil {
		return false, value, err
	}
	o.value = v
	resolved = true
	close(o.status)
	return true, v, nil
}
