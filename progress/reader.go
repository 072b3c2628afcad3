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

import "io"

// TrackReader bind a reader with a tracker.
// Every read updates the tracker with the number of bytes read so far, and
// read failures other than io.EOF mark the transfer as failed.
func TrackReader(t Tracker, r io.Reader, size int64) io.ReadCloser {
	return &readTracker{
		base:    r,
		tracker: t,
		size:    size,
	}
}

type readTracker struct {
	base    io.Reader
	tracker Tracker
	offset  int64
	size    int64
}

// Read reads from the base reader and updates the status.
// On partial read, the tracker treats it as two reads: a successful read
// with status update and a failed read with failure update.
func (rt *readTracker) Read(p []byte) (n int, err error) {
	n, err = rt.base.Read(p)
	rt.offset += int64(n)
	_ = rt.tracker.Update(Status{
		State:  StateTransmitting,
		Offset: rt.offset,
		Size:   rt.size,
	})
	if err != nil && err != io.EOF {
		_ = rt.tracker.Fail(err)
	}
	return n, err
}

// Close closes the tracker.
func (rt *readTracker) Close() error {
	return rt.tracker.Close()
}
