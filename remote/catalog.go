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
	"fmt"
	"strings"

	"github.com/containerd/log"

	"github.com/rigpull/rigpull/asset"
	"github.com/rigpull/rigpull/errdef"
)

// product is a catalog entry as reported by the service.
type product struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
}

// descriptor converts the product to an asset descriptor.
func (p product) descriptor() asset.Descriptor {
	return asset.Descriptor{
		ID:           p.ID,
		Name:         strings.TrimSpace(p.Name),
		Kind:         asset.KindFromType(p.Type),
		Type:         p.Type,
		Description:  p.Description,
		ThumbnailURL: p.Thumbnail,
	}
}

// catalogPage is a page of the catalog.
type catalogPage struct {
	Results    []product `json:"results"`
	Pagination struct {
		Page       int `json:"page"`
		NumPages   int `json:"num_pages"`
		Limit      int `json:"limit"`
		NumResults int `json:"num_results"`
	} `json:"pagination"`
}

// Assets lists the descriptors of the catalog.
// fn is called for each page of the catalog, in listing order. Pages are
// requested sequentially, the next page only after fn returned.
//
// Failures of the service, including a rejected credential, are reported
// as *errdef.CatalogError. Errors returned by fn are returned as is.
// An empty catalog calls fn at most once with no descriptors.
func (s *Service) Assets(ctx context.Context, fn func(assets []asset.Descriptor) error) error {
	page := 1
	for page > 0 {
		next, err := s.assets(ctx, page, fn)
		if err != nil {
			return err
		}
		page = next
	}
	return nil
}

// assets lists a single page of the catalog and returns the number of the
// next page, or zero at the end of the catalog.
func (s *Service) assets(ctx context.Context, page int, fn func(assets []asset.Descriptor) error) (int, error) {
	op := fmt.Sprintf("list page %d", page)
	var result catalogPage
	target := buildCatalogURL(s.BaseURL(), page, s.PageSize, s.CatalogTypes, s.CatalogQuery)
	if err := s.getJSON(ctx, target, &result); err != nil {
		return 0, &errdef.CatalogError{Op: op, Err: err}
	}
	log.G(ctx).WithFields(log.Fields{
		"page":    page,
		"pages":   result.Pagination.NumPages,
		"results": len(result.Results),
	}).Debug("catalog page listed")

	descs := make([]asset.Descriptor, 0, len(result.Results))
	for _, p := range result.Results {
		if p.ID == "" {
			log.G(ctx).WithField("name", p.Name).Warn("catalog entry without id skipped")
			continue
		}
		descs = append(descs, p.descriptor())
	}
	if err := fn(descs); err != nil {
		return 0, err
	}

	if len(result.Results) == 0 || page >= result.Pagination.NumPages {
		return 0, nil
	}
	return page + 1, nil
}

// ListAssets returns all the descriptors of the catalog, in listing order.
func (s *Service) ListAssets(ctx context.Context) ([]asset.Descriptor, error) {
	var res []asset.Descriptor
	if err := s.Assets(ctx, func(assets []asset.Descriptor) error {
		res = append(res, assets...)
		return nil
	}); err != nil {
		return nil, err
	}
	return res, nil
}
