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

// Package remote implements the client of the remote animation service:
// catalog listing, server-side export and payload fetching.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	perrors "github.com/pkg/errors"

	"github.com/rigpull/rigpull/remote/auth"
	"github.com/rigpull/rigpull/remote/remoteerr"
)

// DefaultBaseURL is the base URL of the public service.
const DefaultBaseURL = "https://www.mixamo.com"

// defaultMaxMetadataBytes specifies the default limit on how many response
// bytes are allowed in the server's response to the metadata APIs.
// A catalog page of 96 products is around 60 KiB.
var defaultMaxMetadataBytes int64 = 4 * 1024 * 1024 // 4 MiB

var errInvalidBaseURL = errors.New("base URL must be an absolute http(s) URL")

// Client is an interface for a HTTP client.
type Client interface {
	// Do sends an HTTP request and returns an HTTP response.
	//
	// Unlike http.RoundTripper, Client can attempt to interpret the response
	// and handle higher-level protocol details such as redirects and
	// authentication.
	//
	// Like http.RoundTripper, Client should not modify the request, and must
	// always close the request body.
	Do(*http.Request) (*http.Response, error)
}

// Service is a client of the remote animation service.
type Service struct {
	// Client is the underlying HTTP client used to access the remote service.
	// If nil, auth.DefaultClient is used.
	Client Client

	// PageSize specifies the page size when listing the catalog.
	// If zero, the page size is determined by the remote service.
	PageSize int

	// CatalogQuery is passed to the service when listing the catalog so
	// that the server narrows the listing. Client-side filtering still
	// applies.
	CatalogQuery string

	// CatalogTypes are the product types requested when listing the
	// catalog.
	CatalogTypes string

	// MaxMetadataBytes specifies a limit on how many response bytes are
	// allowed in the server's response to the metadata APIs.
	// If less than or equal to zero, a default (currently 4MiB) is used.
	MaxMetadataBytes int64

	baseURL *url.URL
}

// NewService creates a client to the service at baseURL.
func NewService(baseURL string) (*Service, error) {
	u, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Service{
		CatalogTypes: "Motion,MotionPack,Pose",
		baseURL:      u,
	}, nil
}

// NewAuthenticatedService creates a client to the service at baseURL which
// authorizes every service request with cred, sending them through
// httpClient.
func NewAuthenticatedService(baseURL string, httpClient *http.Client, cred auth.Credential) (*Service, error) {
	if cred.IsEmpty() {
		return nil, auth.ErrMissingCredential
	}
	s, err := NewService(baseURL)
	if err != nil {
		return nil, err
	}
	s.Client = auth.NewClient(httpClient, s.Host(), cred)
	return s, nil
}

// Host returns the host (i.e. host:port) of the service.
func (s *Service) Host() string {
	return s.baseURL.Host
}

// BaseURL returns the base URL of the service.
func (s *Service) BaseURL() string {
	return s.baseURL.String()
}

// client returns an HTTP client used to access the remote service.
// auth.DefaultClient is return if the client is not configured.
func (s *Service) client() Client {
	if s.Client == nil {
		return auth.DefaultClient
	}
	return s.Client
}

// do sends a request with the given body, encoded as JSON if not nil.
func (s *Service) do(ctx context.Context, method, target string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, perrors.Wrap(err, "failed to encode request")
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.client().Do(req)
}

// getJSON sends a GET request and decodes the JSON response into v.
func (s *Service) getJSON(ctx context.Context, target string, v any) error {
	resp, err := s.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return remoteerr.ParseErrorResponse(resp)
	}
	return decodeJSON(resp, s.maxMetadataBytes(), v)
}

// maxMetadataBytes returns the limit of the metadata responses.
func (s *Service) maxMetadataBytes() int64 {
	if s.MaxMetadataBytes <= 0 {
		return defaultMaxMetadataBytes
	}
	return s.MaxMetadataBytes
}

// decodeJSON decodes at most n bytes of the response body into v.
func decodeJSON(resp *http.Response, n int64, v any) error {
	lr := io.LimitReader(resp.Body, n)
	if err := json.NewDecoder(lr).Decode(v); err != nil {
		return perrors.Wrapf(err, "%s %q: failed to decode response", resp.Request.Method, resp.Request.URL.Redacted())
	}
	return nil
}
