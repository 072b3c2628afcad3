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

package errdef

import (
	"errors"
	"fmt"
)

// Common errors used in rigpull
var (
	ErrExportFailed = errors.New("export failed")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidMode  = errors.New("invalid selection mode")
	ErrNotFound     = errors.New("not found")
	ErrStopped      = errors.New("stopped")
	ErrTimeout      = errors.New("timed out")
	ErrUnauthorized = errors.New("unauthorized")
)

// CatalogError is returned when the catalog cannot be listed or the
// credential is rejected. It is fatal to a run.
type CatalogError struct {
	Op  string
	Err error
}

func (e *CatalogError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("catalog: %v", e.Err)
	}
	return fmt.Sprintf("catalog: %s: %v", e.Op, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned when the requested selection has no matching
// asset. It is fatal to a run.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %v", e.What, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ExportError is returned when the server-side export of a single asset
// fails or times out.
type ExportError struct {
	Asset  string
	Reason string
	Err    error
}

func NewExportError(asset, reason string, err error) error {
	return &ExportError{
		Asset:  asset,
		Reason: reason,
		Err:    err,
	}
}

func (e *ExportError) Error() string {
	switch {
	case impliedBy(e.Reason, e.Err):
		return fmt.Sprintf("export %q: %s", e.Asset, e.Reason)
	case e.Reason == "":
		return fmt.Sprintf("export %q: %v", e.Asset, e.Err)
	default:
		return fmt.Sprintf("export %q: %s: %v", e.Asset, e.Reason, e.Err)
	}
}

func (e *ExportError) Unwrap() error {
	if e.Err == nil {
		return ErrExportFailed
	}
	return e.Err
}

// DownloadError is returned when the payload of a single asset cannot be
// transferred or written to disk.
type DownloadError struct {
	Asset string
	Path  string
	Err   error
}

func NewDownloadError(asset, path string, err error) error {
	return &DownloadError{
		Asset: asset,
		Path:  path,
		Err:   err,
	}
}

func (e *DownloadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("download %q: %v", e.Asset, e.Err)
	}
	return fmt.Sprintf("download %q to %s: %v", e.Asset, e.Path, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Reason returns a short human readable reason for a per-item failure,
// suitable for a failure summary.
func Reason(err error) string {
	var exportErr *ExportError
	if errors.As(err, &exportErr) {
		switch {
		case exportErr.Reason == "" && exportErr.Err == nil:
			return ErrExportFailed.Error()
		case exportErr.Reason == "":
			return exportErr.Err.Error()
		case impliedBy(exportErr.Reason, exportErr.Err):
			return exportErr.Reason
		default:
			return exportErr.Reason + ": " + exportErr.Err.Error()
		}
	}
	var downloadErr *DownloadError
	if errors.As(err, &downloadErr) && downloadErr.Err != nil {
		return downloadErr.Err.Error()
	}
	return err.Error()
}

// impliedBy returns true if err adds nothing to reason: err is nil, or one
// of the sentinels set along with an explicit reason.
func impliedBy(reason string, err error) bool {
	switch err {
	case nil:
		return true
	case ErrExportFailed, ErrTimeout:
		return reason != ""
	}
	return reason == err.Error()
}
