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
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rigpull/rigpull/asset"
)

func TestChannelReporter_Order(t *testing.T) {
	r := NewChannelReporter()
	r.TotalKnown(3)
	for i := 1; i <= 3; i++ {
		r.Progress(i, 3)
	}
	r.Finished(Summary{Succeeded: 3, Completed: 3, Total: 3})
	// ignored after the terminal event
	r.Progress(4, 3)

	var got []Event
	for e := range r.Events() {
		got = append(got, e)
	}
	require.Len(t, got, 5)
	assert.Equal(t, Event{Type: EventTotalKnown, Total: 3}, got[0])
	for i := 1; i <= 3; i++ {
		assert.Equal(t, Event{Type: EventProgress, Total: 3, Completed: i}, got[i])
	}
	assert.Equal(t, EventFinished, got[4].Type)
	require.NotNil(t, got[4].Summary)
	assert.Equal(t, 3, got[4].Summary.Succeeded)
}

func TestChannelReporter_Aborted(t *testing.T) {
	r := NewChannelReporter()
	errFatal := errors.New("fatal")
	r.Aborted(errFatal)

	var got []Event
	for e := range r.Events() {
		got = append(got, e)
	}
	require.Len(t, got, 1)
	assert.Equal(t, EventAborted, got[0].Type)
	assert.Equal(t, errFatal, got[0].Err)
}

func TestChannelReporter_NonBlocking(t *testing.T) {
	r := NewChannelReporter()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.TotalKnown(1000)
		for i := 1; i <= 1000; i++ {
			r.Progress(i, 1000)
		}
		r.Finished(Summary{Completed: 1000, Total: 1000})
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reporting blocked without receiver")
	}

	last := 0
	for e := range r.Events() {
		if e.Type == EventProgress {
			assert.Equal(t, last+1, e.Completed)
			last = e.Completed
		}
	}
	assert.Equal(t, 1000, last)
}

func TestReporterFunc(t *testing.T) {
	var got []EventType
	r := ReporterFunc(func(e Event) { got = append(got, e.Type) })
	r.TotalKnown(1)
	r.Progress(1, 1)
	r.Finished(Summary{})
	r.Aborted(errors.New("x"))
	assert.Equal(t, []EventType{EventTotalKnown, EventProgress, EventFinished, EventAborted}, got)
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "total", EventTotalKnown.String())
	assert.Equal(t, "progress", EventProgress.String())
	assert.Equal(t, "finished", EventFinished.String())
	assert.Equal(t, "aborted", EventAborted.String())
	assert.Equal(t, "unknown", EventType(0).String())
}

func TestTrackReader(t *testing.T) {
	var mu sync.Mutex
	var statuses []Status
	var failures []error
	m := ManagerFunc(func(desc asset.Descriptor, status Status, err error) error {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "a1", desc.ID)
		if err != nil {
			failures = append(failures, err)
			return nil
		}
		statuses = append(statuses, status)
		return nil
	})
	tracker, err := m.Track(asset.Descriptor{ID: "a1"})
	require.NoError(t, err)
	require.NoError(t, Start(tracker, 5))

	rc := TrackReader(tracker, io.LimitReader(strings.NewReader("hello world"), 5), 5)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.NoError(t, Done(tracker))
	assert.Equal(t, "hello", string(data))
	assert.Empty(t, failures)

	require.GreaterOrEqual(t, len(statuses), 3)
	assert.Equal(t, Status{State: StateInitialized, Offset: -1, Size: 5}, statuses[0])
	assert.Equal(t, StateTransmitted, statuses[len(statuses)-1].State)
	last := statuses[len(statuses)-2]
	assert.Equal(t, StateTransmitting, last.State)
	assert.Equal(t, int64(5), last.Offset)
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func TestTrackReader_Failure(t *testing.T) {
	var failed error
	var state State
	tracker := TrackerFunc(func(status Status, err error) error {
		if err != nil {
			failed = err
			state = status.State
		}
		return nil
	})

	_, err := io.ReadAll(TrackReader(tracker, brokenReader{}, -1))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.ErrorIs(t, failed, io.ErrUnexpectedEOF)
	assert.Equal(t, StateFailed, state)
}

func TestRecord(t *testing.T) {
	var got Status
	m := ManagerFunc(func(_ asset.Descriptor, status Status, _ error) error {
		got = status
		return nil
	})
	require.NoError(t, Record(m, asset.Descriptor{ID: "a1"}, Status{State: StateTransmitted, Offset: 10}))
	assert.Equal(t, Status{State: StateTransmitted, Offset: 10}, got)
	assert.NoError(t, m.Close())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "transmitting", StateTransmitting.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", StateUnknown.String())
}
