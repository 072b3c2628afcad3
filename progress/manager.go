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

import (
	"io"

	"github.com/rigpull/rigpull/asset"
)

// Manager tracks the transfer progress of multiple asset payloads.
type Manager interface {
	io.Closer

	// Track starts tracking the transfer of the payload of an asset.
	Track(desc asset.Descriptor) (Tracker, error)
}

// ManagerFunc is an adapter to allow the use of ordinary functions as Managers.
// If f is a function with the appropriate signature, ManagerFunc(f) is a
// [Manager] that calls f.
type ManagerFunc func(asset.Descriptor, Status, error) error

// Track starts tracking the transfer of the payload of an asset.
func (f ManagerFunc) Track(desc asset.Descriptor) (Tracker, error) {
	return TrackerFunc(func(status Status, err error) error {
		return f(desc, status, err)
	}), nil
}

// Close closes the manager.
func (f ManagerFunc) Close() error {
	return nil
}

// Record adds the progress of an asset as a single entry.
func Record(m Manager, desc asset.Descriptor, status Status) error {
	tracker, err := m.Track(desc)
	if err != nil {
		return err
	}
	err = tracker.Update(status)
	if err != nil {
		return err
	}
	return tracker.Close()
}
