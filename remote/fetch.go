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
	"io"
	"net/http"
	"net/url"

	"github.com/containerd/log"
	perrors "github.com/pkg/errors"

	"github.com/rigpull/rigpull/remote/remoteerr"
)

// Fetch opens the exported payload at rawURL. Relative URLs are resolved
// against the base URL of the service.
// The returned size is -1 if unknown. The caller must close the returned
// reader.
func (s *Service) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, perrors.Wrapf(err, "invalid payload URL %q", rawURL)
	}
	target := s.baseURL.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, 0, remoteerr.ParseErrorResponse(resp)
	}
	log.G(ctx).WithFields(log.Fields{
		"host": target.Host,
		"size": resp.ContentLength,
	}).Debug("payload opened")
	return resp.Body, resp.ContentLength, nil
}
