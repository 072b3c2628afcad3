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

// Package auth provides bearer authentication for a client to the remote
// animation service.
package auth

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/rigpull/rigpull/remote/retry"
)

// HTTP header names used in authentication.
const (
	headerAuthorization = "Authorization"
	headerUserAgent     = "User-Agent"
)

// ErrMissingCredential is returned when a service is set up without a
// credential.
var ErrMissingCredential = errors.New("missing credential")

// DefaultClient is the default auth-decorated client without credential.
var DefaultClient = &Client{
	Client: retry.DefaultClient,
	Header: http.Header{
		headerUserAgent: {"rigpull"},
	},
}

// Client is an auth-decorated HTTP client.
// It never mutates shared state: every request is cloned before the
// headers are applied, so a Client may be used concurrently.
type Client struct {
	// Client is the underlying HTTP client used to access the remote
	// server.
	// If nil, http.DefaultClient is used.
	// It is possible to use the default retry client from the package
	// `github.com/rigpull/rigpull/remote/retry`.
	Client *http.Client

	// Header contains the custom headers to be added to each request.
	Header http.Header

	// TokenSource provides the bearer token.
	// If nil, no Authorization header is added.
	TokenSource oauth2.TokenSource

	// Host restricts the Authorization header to requests for the given
	// host (i.e. host:port). Payload URLs handed out by the service point
	// to storage hosts which must not receive the token.
	// If empty, the header is added to every request.
	Host string
}

// NewClient returns a client authorizing requests to host with cred.
func NewClient(client *http.Client, host string, cred Credential) *Client {
	c := &Client{
		Client: client,
		Header: http.Header{
			headerUserAgent: {"rigpull"},
		},
		Host: host,
	}
	if !cred.IsEmpty() {
		c.TokenSource = cred.TokenSource()
	}
	return c
}

// client returns an HTTP client used to access the remote server.
// http.DefaultClient is return if the client is not configured.
func (c *Client) client() *http.Client {
	if c.Client == nil {
		return http.DefaultClient
	}
	return c.Client
}

// SetUserAgent sets the user agent for all out-going requests.
func (c *Client) SetUserAgent(userAgent string) {
	if c.Header == nil {
		c.Header = http.Header{}
	}
	c.Header.Set(headerUserAgent, userAgent)
}

// Do sends the request to the remote server, adding the custom headers and
// the bearer token if the request targets the service host and carries no
// Authorization header yet.
func (c *Client) Do(originalReq *http.Request) (*http.Response, error) {
	req := originalReq.Clone(originalReq.Context())
	for key, values := range c.Header {
		if _, ok := req.Header[key]; ok {
			continue
		}
		req.Header[key] = append([]string(nil), values...)
	}

	if c.TokenSource != nil && c.authorizes(req) && req.Header.Get(headerAuthorization) == "" {
		token, err := c.TokenSource.Token()
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve bearer token")
		}
		token.SetAuthHeader(req)
	}
	return c.client().Do(req)
}

// authorizes returns true if the request should carry the bearer token.
func (c *Client) authorizes(req *http.Request) bool {
	if c.Host == "" {
		return true
	}
	host := req.URL.Host
	if host == "" {
		host = req.Host
	}
	return strings.EqualFold(host, c.Host)
}
