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

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/containerd/log"
	"golang.org/x/time/rate"

	"github.com/rigpull/rigpull/asset"
	"github.com/rigpull/rigpull/errdef"
	"github.com/rigpull/rigpull/internal/syncutil"
	"github.com/rigpull/rigpull/remote/remoteerr"
)

// Defaults of the export polling.
const (
	DefaultPollInterval = time.Second
	DefaultExportWait   = 2 * time.Minute
)

// Export statuses reported by the monitor endpoint.
const (
	monitorProcessing = "processing"
	monitorCompleted  = "completed"
	monitorFailed     = "failed"
)

// JobStatus is the status of an export job.
type JobStatus int

// Registered job statuses.
const (
	JobRequested JobStatus = iota // export requested
	JobPolling                    // waiting for the server
	JobReady                      // payload ready for download
	JobFailed                     // export failed
)

// String returns the name of the status.
func (s JobStatus) String() string {
	switch s {
	case JobRequested:
		return "requested"
	case JobPolling:
		return "polling"
	case JobReady:
		return "ready"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ExportJob tracks the export of a single asset.
type ExportJob struct {
	Descriptor asset.Descriptor
	WithSkin   bool
	Status     JobStatus

	// URL is the payload URL, set once the job is ready.
	URL string

	// Reason is the failure reason, set once the job failed.
	Reason string
}

// Preferences are the export preferences sent to the service.
type Preferences struct {
	Format   string `json:"format"`
	Skin     string `json:"skin"`
	FPS      string `json:"fps"`
	ReduceKF string `json:"reducekf"`
}

// DefaultPreferences are the preferences used when none are configured.
var DefaultPreferences = Preferences{
	Format:   "fbx7",
	FPS:      "30",
	ReduceKF: "0",
}

// gmsHash is the motion description of an animation applied to a character.
type gmsHash struct {
	ModelID   json.Number `json:"model-id"`
	Mirror    bool        `json:"mirror"`
	Trim      []float64   `json:"trim"`
	Overdrive float64     `json:"overdrive"`
	Params    string      `json:"params"`
	ArmSpace  float64     `json:"arm-space"`
	Inplace   bool        `json:"inplace"`
}

// productDetails is the product as applied to a character.
type productDetails struct {
	Description string `json:"description"`
	Details     struct {
		GMSHash struct {
			ModelID   json.Number `json:"model-id"`
			Mirror    bool        `json:"mirror"`
			Trim      []float64   `json:"trim"`
			Overdrive float64     `json:"overdrive"`
			Params    [][]any     `json:"params"`
			ArmSpace  float64     `json:"arm-space"`
			Inplace   bool        `json:"inplace"`
		} `json:"gms_hash"`
	} `json:"details"`
}

// hash flattens the details into the hash expected by the export request.
// The parameters are sent as their comma separated values.
func (d productDetails) hash() gmsHash {
	g := d.Details.GMSHash
	values := make([]string, 0, len(g.Params))
	for _, p := range g.Params {
		if len(p) < 2 {
			continue
		}
		values = append(values, fmt.Sprint(p[1]))
	}
	trim := g.Trim
	if len(trim) == 0 {
		trim = []float64{0, 100}
	}
	return gmsHash{
		ModelID:   g.ModelID,
		Mirror:    g.Mirror,
		Trim:      trim,
		Overdrive: g.Overdrive,
		Params:    strings.Join(values, ","),
		ArmSpace:  g.ArmSpace,
		Inplace:   g.Inplace,
	}
}

// exportRequest is the body of an export request.
type exportRequest struct {
	CharacterID string      `json:"character_id"`
	GMSHash     []gmsHash   `json:"gms_hash"`
	Preferences Preferences `json:"preferences"`
	ProductName string      `json:"product_name"`
	Type        string      `json:"type"`
}

// monitorResponse is the export status of a character.
type monitorResponse struct {
	Status    string `json:"status"`
	JobResult string `json:"job_result"`
	Message   string `json:"message"`
}

// Exporter requests server-side exports of assets onto the primary
// character and waits for them to be ready.
// Exports are expected to be requested one at a time: the service reports
// the status per character.
type Exporter struct {
	// Service is the remote service.
	Service *Service

	// Preferences are the export preferences. The skin preference is
	// overridden per export.
	// If zero, DefaultPreferences is used.
	Preferences Preferences

	// PollInterval is the interval between two status polls.
	// If zero, DefaultPollInterval is used.
	PollInterval time.Duration

	// MaxWait is the maximum duration to wait for an export to be ready.
	// If zero, DefaultExportWait is used.
	MaxWait time.Duration

	// OnStatus, if set, is called on every status transition of a job.
	OnStatus func(job ExportJob)

	mu        sync.Mutex
	character *syncutil.Once[Character]
}

// NewExporter creates an exporter for the service.
func NewExporter(s *Service) *Exporter {
	return &Exporter{
		Service: s,
	}
}

// Prepare resolves the primary character the assets are exported onto.
// The character is requested again on every call, so that each run exports
// onto the character selected at its start. Exports reuse the character
// resolved by the last call.
func (e *Exporter) Prepare(ctx context.Context) error {
	e.mu.Lock()
	e.character = syncutil.NewOnce[Character]()
	e.mu.Unlock()
	_, err := e.primaryCharacter(ctx)
	return err
}

// primaryCharacter returns the primary character, resolving it if Prepare
// has not resolved it yet. Concurrent callers share a single request.
func (e *Exporter) primaryCharacter(ctx context.Context) (Character, error) {
	e.mu.Lock()
	if e.character == nil {
		e.character = syncutil.NewOnce[Character]()
	}
	character := e.character
	e.mu.Unlock()

	first, c, err := character.Do(ctx, func() (Character, error) {
		return e.Service.PrimaryCharacter(ctx)
	})
	if err != nil {
		return Character{}, err
	}
	if first {
		log.G(ctx).WithFields(log.Fields{
			"character": c.Name,
			"id":        c.ID,
		}).Info("primary character resolved")
	}
	return c, nil
}

// Export requests the export of desc, with or without the character skin,
// and polls the service until the payload is ready. It returns the URL of
// the payload.
// Any failure is reported as *errdef.ExportError. Terminal failures
// reported by the service are not retried.
func (e *Exporter) Export(ctx context.Context, desc asset.Descriptor, withSkin bool) (string, error) {
	job := ExportJob{
		Descriptor: desc,
		WithSkin:   withSkin,
		Status:     JobRequested,
	}
	name := desc.DisplayName()
	ctx = log.WithLogger(ctx, log.G(ctx).WithField("asset", name))

	character, err := e.primaryCharacter(ctx)
	if err != nil {
		return "", e.fail(ctx, &job, "resolve primary character", err)
	}

	req := exportRequest{
		CharacterID: character.ID,
		Preferences: e.preferences(withSkin),
		ProductName: name,
		Type:        asset.TypeMotion,
	}
	if desc.Kind == asset.KindPose {
		req.Type = "Character"
	} else {
		var details productDetails
		if err := e.Service.getJSON(ctx, buildProductURL(e.Service.BaseURL(), desc.ID, character.ID), &details); err != nil {
			return "", e.fail(ctx, &job, "fetch product details", err)
		}
		req.GMSHash = []gmsHash{details.hash()}
	}

	if err := e.requestExport(ctx, req); err != nil {
		return "", e.fail(ctx, &job, "request export", err)
	}
	e.transit(ctx, &job, JobPolling)

	url, err := e.poll(ctx, character.ID)
	if err != nil {
		var exportErr *errdef.ExportError
		if errors.As(err, &exportErr) {
			job.Status = JobFailed
			job.Reason = exportErr.Reason
			e.notify(job)
			exportErr.Asset = name
			return "", exportErr
		}
		return "", e.fail(ctx, &job, "poll export status", err)
	}
	job.URL = url
	e.transit(ctx, &job, JobReady)
	return url, nil
}

// requestExport posts the export request.
func (e *Exporter) requestExport(ctx context.Context, req exportRequest) error {
	resp, err := e.Service.do(ctx, http.MethodPost, buildExportURL(e.Service.BaseURL()), req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return nil
	default:
		return remoteerr.ParseErrorResponse(resp)
	}
}

// poll waits for the export of the character to complete.
// The polls are paced by a limiter, so that the service is requested at
// most once per interval.
func (e *Exporter) poll(ctx context.Context, characterID string) (string, error) {
	maxWait := e.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultExportWait
	}
	interval := e.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	pollCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	// give the service a full interval before the first poll
	limiter.Allow()

	target := buildMonitorURL(e.Service.BaseURL(), characterID)
	for {
		if err := wait(pollCtx, limiter); err != nil {
			return "", e.pollError(ctx, maxWait, err)
		}

		var status monitorResponse
		if err := e.Service.getJSON(pollCtx, target, &status); err != nil {
			return "", e.pollError(ctx, maxWait, err)
		}
		log.G(ctx).WithField("status", status.Status).Debug("export status polled")

		switch strings.ToLower(status.Status) {
		case monitorCompleted:
			if status.JobResult == "" {
				return "", &errdef.ExportError{Reason: "export completed without payload URL"}
			}
			return status.JobResult, nil
		case monitorFailed:
			reason := status.Message
			if reason == "" {
				reason = "server reported export failure"
			}
			return "", &errdef.ExportError{Reason: reason, Err: errdef.ErrExportFailed}
		}
	}
}

// wait blocks until the limiter allows the next poll. It fails right away
// with context.DeadlineExceeded if the poll would come after the deadline
// of ctx.
func wait(ctx context.Context, limiter *rate.Limiter) error {
	reservation := limiter.Reserve()
	delay := reservation.Delay()
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
		reservation.Cancel()
		return context.DeadlineExceeded
	}
	if delay == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	}
}

// pollError converts a polling failure. Running out of the wait budget is
// reported as a timeout, unless the parent context is done.
func (e *Exporter) pollError(ctx context.Context, maxWait time.Duration, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		log.G(ctx).WithField("wait", maxWait).Debug("export not ready in time")
		return &errdef.ExportError{
			Reason: "timed out",
			Err:    errdef.ErrTimeout,
		}
	}
	return err
}

// preferences returns the export preferences.
func (e *Exporter) preferences(withSkin bool) Preferences {
	p := e.Preferences
	if p == (Preferences{}) {
		p = DefaultPreferences
	}
	p.Skin = "false"
	if withSkin {
		p.Skin = "true"
	}
	return p
}

// fail marks the job as failed and returns the matching export error.
func (e *Exporter) fail(ctx context.Context, job *ExportJob, reason string, err error) error {
	job.Status = JobFailed
	job.Reason = reason
	log.G(ctx).WithError(err).WithField("reason", reason).Debug("export failed")
	e.notify(*job)
	return errdef.NewExportError(job.Descriptor.DisplayName(), reason, err)
}

// transit moves the job to the given status.
func (e *Exporter) transit(ctx context.Context, job *ExportJob, status JobStatus) {
	job.Status = status
	log.G(ctx).WithField("job", status).Debug("export job status changed")
	e.notify(*job)
}

func (e *Exporter) notify(job ExportJob) {
	if e.OnStatus != nil {
		e.OnStatus(job)
	}
}
