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

package asset

import "github.com/opencontainers/go-digest"

// Artifact describes an asset payload written to local storage.
type Artifact struct {
	// ID is the catalog identifier of the asset.
	ID string `json:"id"`

	// Name is the display name of the asset.
	Name string `json:"name"`

	// Path is the path of the written file.
	Path string `json:"path"`

	// Digest is the digest of the file content.
	Digest digest.Digest `json:"digest"`

	// Size is the size of the file in bytes.
	Size int64 `json:"size"`
}
