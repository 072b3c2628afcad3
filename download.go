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

// Package rigpull bulk downloads animation assets from a remote
// animation-rigging service: it lists the catalog, selects assets, requests
// their server-side export onto the primary character and stores the
// exported payloads, one item at a time.
package rigpull

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/containerd/log"
	"github.com/google/uuid"
	perrors "github.com/pkg/errors"

	"github.com/rigpull/rigpull/asset"
	"github.com/rigpull/rigpull/content/file"
	"github.com/rigpull/rigpull/errdef"
	"github.com/rigpull/rigpull/progress"
	"github.com/rigpull/rigpull/remote/retry"
)

// Catalog lists the assets of the remote catalog, page by page.
type Catalog interface {
	Assets(ctx context.Context, fn func(assets []asset.Descriptor) error) error
}

// Exporter exports an asset and returns the URL of its payload.
type Exporter interface {
	Export(ctx context.Context, desc asset.Descriptor, withSkin bool) (string, error)
}

// Preparer is implemented by exporters which resolve state once per run,
// before the catalog is listed.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Fetcher opens exported payloads.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

// Storage stores payloads.
type Storage interface {
	Push(ctx context.Context, desc asset.Descriptor, content io.Reader) (asset.Artifact, error)
}

// State is the state of a run.
type State int

// Registered run states.
const (
	StateIdle State = iota
	StateListing
	StateFiltering
	StateExporting
	StateDownloading
	StateAdvancing
	StateItemFailed
	StateCompleted
	StateCancelled
	StateAborted
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListing:
		return "listing"
	case StateFiltering:
		return "filtering"
	case StateExporting:
		return "exporting"
	case StateDownloading:
		return "downloading"
	case StateAdvancing:
		return "advancing"
	case StateItemFailed:
		return "item failed"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// RunState is a snapshot of the state of a run.
type RunState struct {
	State State

	// Total is the number of selected items, valid once TotalKnown.
	Total      int
	TotalKnown bool

	// Completed is the number of processed items, failed ones included.
	Completed int

	// Cancelled is true once the run stopped on request.
	Cancelled bool
}

// NewPayloadRetryPolicy returns the policy retrying payload downloads
// interrupted while reading the payload by a transient network failure.
// Failures to open the payload are retried by the HTTP transport.
func NewPayloadRetryPolicy(attempts int, base, max time.Duration) *retry.GenericPolicy {
	p := retry.NewPolicy(attempts, base, max)
	p.Retryable = func(_ context.Context, _ *http.Response, err error) (bool, error) {
		return errors.Is(err, file.ErrSourceRead) && retry.IsTransient(err), nil
	}
	return p
}

// DefaultPayloadRetryPolicy is the default payload retry policy.
var DefaultPayloadRetryPolicy retry.Policy = NewPayloadRetryPolicy(retry.DefaultMaxAttempts, retry.DefaultBaseDelay, retry.DefaultMaxDelay)

// Orchestrator runs download sessions.
// An Orchestrator holds no state across runs and may run several sessions,
// each with its own storage.
type Orchestrator struct {
	// Catalog lists the assets.
	Catalog Catalog

	// Exporter exports the selected assets. If it implements Preparer, it
	// is prepared at the start of each run.
	Exporter Exporter

	// Fetcher opens the exported payloads.
	Fetcher Fetcher

	// PayloadRetryPolicy retries failed payload downloads.
	// If nil, DefaultPayloadRetryPolicy is used.
	PayloadRetryPolicy retry.Policy

	// Transfers, if set, tracks the byte-level progress of payloads.
	// Items failing before their payload is fetched are recorded as failed.
	Transfers progress.Manager

	// Extensions maps asset kinds to payload file extensions for runs
	// started with Start. See file.Store.
	Extensions map[asset.Kind]string
}

// Run runs a download session synchronously: it lists the catalog,
// selects the assets by mode, and exports and stores them one at a time.
//
// The stop token is checked before each item; once stopped the run ends
// after the item in flight and the summary is marked cancelled.
// Per-item failures are recorded in the summary and the run continues,
// except for rejected credentials which abort the run after the failed
// item. Listing, filtering and preparation failures abort the run before
// any item.
//
// The events of the run are reported to reporter, which may be nil. A
// non-nil error is returned, and reported as Aborted, if the run aborted.
func (o *Orchestrator) Run(ctx context.Context, store Storage, mode Mode, stop *StopToken, reporter progress.Reporter) (progress.Summary, error) {
	r := o.newRun(uuid.NewString(), store, mode, stop, reporter)
	return r.run(ctx)
}

// Start starts a download session storing the payloads to outputDir, on
// its own goroutine. The output directory is created if needed.
func (o *Orchestrator) Start(ctx context.Context, outputDir string, mode Mode) (*Run, error) {
	if outputDir == "" {
		return nil, errors.New("missing output directory")
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if err := ensureDir(outputDir); err != nil {
		return nil, perrors.Wrapf(err, "failed to create output directory %s", outputDir)
	}

	store := file.New(outputDir)
	store.Extensions = o.Extensions
	reporter := progress.NewChannelReporter()
	stop := NewStopToken()
	r := o.newRun(uuid.NewString(), store, mode, stop, reporter)
	handle := &Run{
		ID:       r.id,
		run:      r,
		stop:     stop,
		reporter: reporter,
		done:     make(chan struct{}),
	}
	go func() {
		defer close(handle.done)
		handle.summary, handle.err = r.run(ctx)
		if err := store.Close(); err != nil {
			log.G(ctx).WithError(err).Warn("failed to clean up temp files")
		}
	}()
	return handle, nil
}

func (o *Orchestrator) validate() error {
	switch {
	case o.Catalog == nil:
		return errors.New("nil catalog")
	case o.Exporter == nil:
		return errors.New("nil exporter")
	case o.Fetcher == nil:
		return errors.New("nil fetcher")
	}
	return nil
}

func (o *Orchestrator) payloadRetryPolicy() retry.Policy {
	if o.PayloadRetryPolicy == nil {
		return DefaultPayloadRetryPolicy
	}
	return o.PayloadRetryPolicy
}

// Run is a download session started by Orchestrator.Start.
type Run struct {
	// ID identifies the run in logs.
	ID string

	run      *run
	stop     *StopToken
	reporter *progress.ChannelReporter
	done     chan struct{}
	summary  progress.Summary
	err      error
}

// Stop requests a graceful stop: the item in flight completes and no
// further item is started.
func (r *Run) Stop() {
	r.stop.Stop()
}

// Events returns the ordered events of the run. The channel is closed
// after the terminal event, and must be drained.
func (r *Run) Events() <-chan progress.Event {
	return r.reporter.Events()
}

// State returns a snapshot of the state of the run.
func (r *Run) State() RunState {
	return r.run.snapshot()
}

// Done returns a channel closed once the run ended.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait waits for the run to end and returns its outcome.
func (r *Run) Wait() (progress.Summary, error) {
	<-r.done
	return r.summary, r.err
}

// run is the state machine of a single download session.
type run struct {
	o        *Orchestrator
	id       string
	store    Storage
	mode     Mode
	stop     *StopToken
	reporter progress.Reporter

	mu      sync.Mutex // protects state
	state   RunState
	summary progress.Summary
}

func (o *Orchestrator) newRun(id string, store Storage, mode Mode, stop *StopToken, reporter progress.Reporter) *run {
	if reporter == nil {
		reporter = progress.Discard
	}
	return &run{
		o:        o,
		id:       id,
		store:    store,
		mode:     mode,
		stop:     stop,
		reporter: reporter,
	}
}

func (r *run) run(ctx context.Context) (progress.Summary, error) {
	ctx = log.WithLogger(ctx, log.G(ctx).WithField("run", r.id))
	logger := log.G(ctx)
	logger.WithField("mode", r.mode).Info("run started")

	if err := r.execute(ctx); err != nil {
		r.transit(ctx, StateAborted)
		summary := r.result()
		logger.WithError(err).Error("run aborted")
		r.reporter.Aborted(err)
		return summary, err
	}

	summary := r.result()
	logger.WithFields(log.Fields{
		"succeeded": summary.Succeeded,
		"failed":    len(summary.Failed),
		"cancelled": summary.Cancelled,
	}).Info("run finished")
	r.reporter.Finished(summary)
	return summary, nil
}

// execute runs the session until completion, cancellation or a run-level
// failure.
func (r *run) execute(ctx context.Context) error {
	if err := r.o.validate(); err != nil {
		return err
	}
	if r.store == nil {
		return errors.New("nil storage")
	}

	r.transit(ctx, StateListing)
	if p, ok := r.o.Exporter.(Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			return err
		}
	}
	var assets []asset.Descriptor
	if err := r.o.Catalog.Assets(ctx, func(page []asset.Descriptor) error {
		assets = append(assets, page...)
		return nil
	}); err != nil {
		return err
	}

	r.transit(ctx, StateFiltering)
	selections, err := Filter(assets, r.mode)
	if err != nil {
		return err
	}
	total := len(selections)
	r.update(func(s *RunState) {
		s.Total = total
		s.TotalKnown = true
	})
	log.G(ctx).WithFields(log.Fields{
		"listed":   len(assets),
		"selected": total,
	}).Info("assets selected")
	r.reporter.TotalKnown(total)

	for i, sel := range selections {
		if err := r.stop.Err(); err != nil {
			log.G(ctx).WithError(err).WithField("remaining", total-i).Info("run stopped")
			r.update(func(s *RunState) { s.Cancelled = true })
			r.transit(ctx, StateCancelled)
			return nil
		}

		artifact, err := r.process(ctx, sel)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}

		r.mu.Lock()
		if err != nil {
			r.summary.Failed = append(r.summary.Failed, progress.Failure{
				Name:   sel.Descriptor.DisplayName(),
				Reason: errdef.Reason(err),
			})
		} else {
			r.summary.Succeeded++
			r.summary.Artifacts = append(r.summary.Artifacts, artifact)
		}
		r.state.Completed++
		completed := r.state.Completed
		r.mu.Unlock()

		r.transit(ctx, StateAdvancing)
		r.reporter.Progress(completed, total)

		if rejectedCredential(err) {
			return err
		}
	}
	r.transit(ctx, StateCompleted)
	return nil
}

// process exports and stores a single item.
func (r *run) process(ctx context.Context, sel Selection) (asset.Artifact, error) {
	desc := sel.Descriptor
	name := desc.DisplayName()
	ctx = log.WithLogger(ctx, log.G(ctx).WithField("asset", name))

	r.transit(ctx, StateExporting)
	payloadURL, err := r.o.Exporter.Export(ctx, desc, sel.WithSkin)
	if err != nil {
		r.itemFailed(ctx, err)
		if r.o.Transfers != nil {
			if rerr := progress.Record(r.o.Transfers, desc, progress.Status{State: progress.StateFailed}); rerr != nil {
				log.G(ctx).WithError(rerr).Debug("failed to record transfer")
			}
		}
		return asset.Artifact{}, err
	}

	r.transit(ctx, StateDownloading)
	ctx = log.WithLogger(ctx, log.G(ctx).WithField("url", redactURL(payloadURL)))
	var artifact asset.Artifact
	err = retry.Do(ctx, r.o.payloadRetryPolicy(), func(ctx context.Context) error {
		var err error
		artifact, err = r.download(ctx, desc, payloadURL)
		if err != nil {
			log.G(ctx).WithError(err).Debug("payload download failed")
		}
		return err
	})
	if err != nil {
		r.itemFailed(ctx, err)
		return asset.Artifact{}, err
	}
	log.G(ctx).WithField("path", artifact.Path).Info("asset downloaded")
	return artifact, nil
}

// download fetches the payload at payloadURL and stores it.
func (r *run) download(ctx context.Context, desc asset.Descriptor, payloadURL string) (asset.Artifact, error) {
	rc, size, err := r.o.Fetcher.Fetch(ctx, payloadURL)
	if err != nil {
		return asset.Artifact{}, errdef.NewDownloadError(desc.DisplayName(), "", err)
	}
	defer rc.Close()

	if r.o.Transfers == nil {
		return r.store.Push(ctx, desc, rc)
	}
	tracker, err := r.o.Transfers.Track(desc)
	if err != nil {
		return asset.Artifact{}, err
	}
	defer tracker.Close()
	if err := progress.Start(tracker, size); err != nil {
		return asset.Artifact{}, err
	}
	artifact, err := r.store.Push(ctx, desc, progress.TrackReader(tracker, rc, size))
	if err != nil {
		return asset.Artifact{}, err
	}
	return artifact, progress.Done(tracker)
}

func (r *run) itemFailed(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	r.transit(ctx, StateItemFailed)
	log.G(ctx).WithError(err).Warn("asset skipped")
}

func (r *run) transit(ctx context.Context, state State) {
	r.update(func(s *RunState) { s.State = state })
	log.G(ctx).WithField("state", state).Debug("run state changed")
}

func (r *run) update(fn func(s *RunState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.state)
}

func (r *run) snapshot() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// result returns the summary of the run so far.
func (r *run) result() progress.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.summary
	s.Failed = append([]progress.Failure{}, s.Failed...)
	s.Artifacts = append([]asset.Artifact{}, s.Artifacts...)
	s.Completed = r.state.Completed
	s.Total = r.state.Total
	s.Cancelled = r.state.Cancelled
	return s
}

// rejectedCredential returns true if the service rejected the credential
// while exporting an item. A forbidden asset only fails its own item.
// Payload downloads are not concerned: payloads are usually served by
// pre-signed storage URLs.
func rejectedCredential(err error) bool {
	var exportErr *errdef.ExportError
	return errors.As(err, &exportErr) && errors.Is(err, errdef.ErrUnauthorized)
}

// redactURL strips the query of a payload URL, which usually carries a
// signature.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	u.RawQuery = ""
	return u.Redacted()
}
