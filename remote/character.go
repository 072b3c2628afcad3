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

	"github.com/rigpull/rigpull/errdef"
)

// Character is the primary character of the user, onto which the exported
// animations are applied.
type Character struct {
	ID   string `json:"primary_character_id"`
	Name string `json:"primary_character_name"`
}

// PrimaryCharacter resolves the primary character of the user.
// A rejected credential is reported as *errdef.CatalogError, and a user
// without primary character as *errdef.NotFoundError.
func (s *Service) PrimaryCharacter(ctx context.Context) (Character, error) {
	var c Character
	if err := s.getJSON(ctx, buildPrimaryCharacterURL(s.BaseURL()), &c); err != nil {
		return Character{}, &errdef.CatalogError{Op: "resolve primary character", Err: err}
	}
	if c.ID == "" {
		return Character{}, &errdef.NotFoundError{What: "primary character"}
	}
	return c, nil
}
