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

package rigpull

import (
	"sync"

	"github.com/rigpull/rigpull/errdef"
)

// StopToken requests a graceful stop of a run. The run checks the token
// before starting each item: the item in flight always completes.
// A StopToken is safe for concurrent use, and cannot be reset.
type StopToken struct {
	once sync.Once
	done chan struct{}
	init sync.Once
}

// NewStopToken returns a token not yet stopped.
func NewStopToken() *StopToken {
	t := &StopToken{}
	t.channel()
	return t
}

func (t *StopToken) channel() chan struct{} {
	t.init.Do(func() {
		t.done = make(chan struct{})
	})
	return t.done
}

// Stop requests the stop. Further calls have no effect.
func (t *StopToken) Stop() {
	ch := t.channel()
	t.once.Do(func() {
		close(ch)
	})
}

// Stopped returns true if the stop has been requested.
// A nil token is never stopped.
func (t *StopToken) Stopped() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.channel():
		return true
	default:
		return false
	}
}

// Err returns errdef.ErrStopped once the stop has been requested, nil
// otherwise.
func (t *StopToken) Err() error {
	if t.Stopped() {
		return errdef.ErrStopped
	}
	return nil
}

// Done returns a channel closed once the stop has been requested.
func (t *StopToken) Done() <-chan struct{} {
	return t.channel()
}
