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

// Package asset defines the descriptors of the animation assets listed by
// the remote catalog.
package asset

import "strings"

// Kind is the kind of an asset.
type Kind int

// Registered kinds.
const (
	KindUnknown   Kind = iota // unknown kind
	KindAnimation             // animation, exported without skin
	KindPose                  // pose, exported with skin
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAnimation:
		return "animation"
	case KindPose:
		return "pose"
	default:
		return "unknown"
	}
}

// Remote product types as reported by the catalog.
const (
	TypeMotion     = "Motion"
	TypeMotionPack = "MotionPack"
	TypePose       = "Pose"
)

// TPoseName is the display name of the well-known T-Pose asset.
const TPoseName = "T-Pose"

// KindFromType maps a remote product type to a Kind.
func KindFromType(typ string) Kind {
	switch {
	case strings.EqualFold(typ, TypeMotion), strings.EqualFold(typ, TypeMotionPack):
		return KindAnimation
	case strings.EqualFold(typ, TypePose):
		return KindPose
	default:
		return KindUnknown
	}
}

// Descriptor describes an asset in the catalog.
// A Descriptor is uniquely identified by its ID within a session.
type Descriptor struct {
	// ID is the catalog identifier of the asset.
	ID string `json:"id"`

	// Name is the display name of the asset.
	Name string `json:"name"`

	// Kind is the kind of the asset.
	Kind Kind `json:"-"`

	// Type is the raw product type reported by the catalog.
	Type string `json:"type"`

	// Description is the optional description of the asset.
	Description string `json:"description,omitempty"`

	// ThumbnailURL is the optional URL of the asset thumbnail.
	ThumbnailURL string `json:"thumbnail,omitempty"`
}

// IsTPose returns true if the descriptor is the well-known T-Pose asset.
func (d Descriptor) IsTPose() bool {
	return d.Kind == KindPose && strings.EqualFold(strings.TrimSpace(d.Name), TPoseName)
}

// DisplayName returns the name of the asset, falling back to its ID.
func (d Descriptor) DisplayName() string {
	if name := strings.TrimSpace(d.Name); name != "" {
		return name
	}
	return d.ID
}
