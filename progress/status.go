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

package progress

// State represents the transfer state of an asset payload.
type State int

// Registered states.
const (
	StateUnknown      State = iota // unknown state
	StateInitialized               // progress initialized
	StateTransmitting              // transmitting content
	StateTransmitted               // content transmitted
	StateFailed                    // transfer failed
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateTransmitting:
		return "transmitting"
	case StateTransmitted:
		return "transmitted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status represents the transfer status of an asset payload.
type Status struct {
	// State represents the state of the transfer.
	State State

	// Offset represents the number of bytes transferred so far.
	// Offset is discarded if set to a negative value.
	Offset int64

	// Size is the expected size of the payload, or -1 if unknown.
	Size int64
}
