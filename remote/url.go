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
	"net/url"
	"strconv"
	"strings"
)

// buildCatalogURL builds the URL for accessing a page of the catalog.
// Format: <base>/api/v1/products?page=<page>&limit=<limit>&order=&type=<types>&query=<query>
func buildCatalogURL(base string, page, limit int, types, query string) string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	v.Set("order", "")
	if types != "" {
		v.Set("type", types)
	}
	v.Set("query", query)
	return base + "/api/v1/products?" + v.Encode()
}

// buildProductURL builds the URL for accessing the details of a product
// as applied to a character.
// Format: <base>/api/v1/products/<id>?similar=0&character_id=<character>
func buildProductURL(base, id, characterID string) string {
	v := url.Values{}
	v.Set("similar", "0")
	v.Set("character_id", characterID)
	return base + "/api/v1/products/" + url.PathEscape(id) + "?" + v.Encode()
}

// buildPrimaryCharacterURL builds the URL for resolving the primary character.
// Format: <base>/api/v1/characters/primary
func buildPrimaryCharacterURL(base string) string {
	return base + "/api/v1/characters/primary"
}

// buildExportURL builds the URL for requesting an export.
// Format: <base>/api/v1/animations/export
func buildExportURL(base string) string {
	return base + "/api/v1/animations/export"
}

// buildMonitorURL builds the URL for polling the export status of a character.
// Format: <base>/api/v1/characters/<character>/monitor
func buildMonitorURL(base, characterID string) string {
	return base + "/api/v1/characters/" + url.PathEscape(characterID) + "/monitor"
}

// normalizeBaseURL validates the base URL of the service and strips the
// trailing slashes.
func normalizeBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &url.Error{Op: "parse", URL: raw, Err: errInvalidBaseURL}
	}
	return u, nil
}
