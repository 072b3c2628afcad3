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

package file

import (
	"strings"
	"unicode"
)

// reservedChars are characters not allowed in file names on at least one
// supported platform.
const reservedChars = `<>:"|?*/\`

// Sanitize turns an asset name into a portable file name without
// extension. Path separators, reserved and control characters are replaced
// by "_", and leading or trailing spaces and dots are removed.
// It returns an empty string if nothing is left.
func Sanitize(name string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(reservedChars, r) {
			return '_'
		}
		return r
	}, name)
	return strings.Trim(mapped, " .")
}
