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

package rigpull

import (
	"fmt"
	"strings"

	"github.com/rigpull/rigpull/asset"
	"github.com/rigpull/rigpull/errdef"
)

// ModeKind is the kind of a selection mode.
type ModeKind int

// Registered selection modes.
const (
	ModeAll   ModeKind = iota // every animation
	ModeQuery                 // animations matching a query
	ModeTPose                 // the T-Pose only
)

// String returns the name of the mode kind, as accepted by ParseMode.
func (k ModeKind) String() string {
	switch k {
	case ModeAll:
		return "all"
	case ModeQuery:
		return "query"
	case ModeTPose:
		return "tpose"
	default:
		return "unknown"
	}
}

// Mode selects the assets of a run.
type Mode struct {
	kind  ModeKind
	query string
}

// SelectAll selects every animation of the catalog.
func SelectAll() Mode {
	return Mode{kind: ModeAll}
}

// SelectQuery selects the animations whose name contains query, ignoring
// case.
func SelectQuery(query string) Mode {
	return Mode{kind: ModeQuery, query: query}
}

// SelectTPose selects the T-Pose, exported with the character skin.
func SelectTPose() Mode {
	return Mode{kind: ModeTPose}
}

// ParseMode returns the mode named name. The query is required by the
// query mode and rejected by the others.
func ParseMode(name, query string) (Mode, error) {
	query = strings.TrimSpace(query)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "all":
		if query != "" {
			return SelectQuery(query), nil
		}
		return SelectAll(), nil
	case "query":
		if query == "" {
			return Mode{}, fmt.Errorf("%w: query mode requires a query", errdef.ErrInvalidMode)
		}
		return SelectQuery(query), nil
	case "tpose", "t-pose":
		if query != "" {
			return Mode{}, fmt.Errorf("%w: tpose mode does not take a query", errdef.ErrInvalidMode)
		}
		return SelectTPose(), nil
	default:
		return Mode{}, fmt.Errorf("%w: %q", errdef.ErrInvalidMode, name)
	}
}

// Kind returns the kind of the mode.
func (m Mode) Kind() ModeKind {
	return m.kind
}

// Query returns the query of a query mode.
func (m Mode) Query() string {
	return m.query
}

// String returns a readable form of the mode.
func (m Mode) String() string {
	if m.kind == ModeQuery {
		return fmt.Sprintf("query(%q)", m.query)
	}
	return m.kind.String()
}

// Selection is an asset selected for download.
type Selection struct {
	Descriptor asset.Descriptor

	// WithSkin is true if the asset is exported with the character skin.
	WithSkin bool
}

// Filter selects the assets to download according to mode, preserving the
// listing order. Assets listed more than once are selected once.
// The T-Pose mode fails with *errdef.NotFoundError if the listing has no
// T-Pose.
// Filter does not modify assets.
func Filter(assets []asset.Descriptor, mode Mode) ([]Selection, error) {
	seen := make(map[string]struct{}, len(assets))
	var selected []Selection
	query := strings.ToLower(mode.query)
	for _, desc := range assets {
		if _, ok := seen[desc.ID]; ok {
			continue
		}
		seen[desc.ID] = struct{}{}

		switch mode.kind {
		case ModeAll:
			if desc.Kind == asset.KindAnimation {
				selected = append(selected, Selection{Descriptor: desc})
			}
		case ModeQuery:
			if desc.Kind == asset.KindAnimation && strings.Contains(strings.ToLower(desc.Name), query) {
				selected = append(selected, Selection{Descriptor: desc})
			}
		case ModeTPose:
			if desc.IsTPose() {
				return []Selection{{Descriptor: desc, WithSkin: true}}, nil
			}
		default:
			return nil, fmt.Errorf("%w: %v", errdef.ErrInvalidMode, mode.kind)
		}
	}
	if mode.kind == ModeTPose {
		return nil, &errdef.NotFoundError{What: asset.TPoseName}
	}
	return selected, nil
}
