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

package auth

import (
	"strings"

	"golang.org/x/oauth2"
)

// Credential contains the bearer token used to access the remote service.
// It is obtained out-of-band from an authenticated browser session and is
// never refreshed by this package.
type Credential struct {
	// AccessToken is the bearer token sent to the service.
	AccessToken string
}

// EmptyCredential represents an empty credential.
var EmptyCredential Credential

// NewCredential returns a credential for the given token. A leading
// "Bearer " prefix, as copied from a browser, is removed.
func NewCredential(token string) Credential {
	token = strings.TrimSpace(token)
	if len(token) > len("bearer ") && strings.EqualFold(token[:len("bearer ")], "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}
	return Credential{AccessToken: token}
}

// IsEmpty returns true if the credential carries no token.
func (c Credential) IsEmpty() bool {
	return c.AccessToken == ""
}

// TokenSource returns a static token source for the credential.
func (c Credential) TokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: c.AccessToken,
		TokenType:   "Bearer",
	})
}

// String masks the token so that credentials never end up in logs.
func (c Credential) String() string {
	if c.IsEmpty() {
		return "<empty>"
	}
	return "****"
}
