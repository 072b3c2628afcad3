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
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCredential(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc", "abc"},
		{"  abc \n", "abc"},
		{"Bearer abc", "abc"},
		{"bearer   abc", "abc"},
		{"Bearer", "Bearer"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewCredential(tt.in).AccessToken, "NewCredential(%q)", tt.in)
	}
	assert.True(t, EmptyCredential.IsEmpty())
	assert.Equal(t, "****", NewCredential("secret").String())
	assert.Equal(t, "<empty>", EmptyCredential.String())
}

func TestClient_Do(t *testing.T) {
	var gotAuth, gotAgent, gotCustom string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		gotCustom = r.Header.Get("X-Api-Key")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()
	uri, err := url.Parse(ts.URL)
	require.NoError(t, err)

	client := NewClient(nil, uri.Host, NewCredential("token-1"))
	client.Header.Set("X-Api-Key", "key")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/products", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer token-1", gotAuth)
	assert.Equal(t, "rigpull", gotAgent)
	assert.Equal(t, "key", gotCustom)
	// the original request is left untouched
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestClient_Do_ForeignHost(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer ts.Close()

	client := NewClient(nil, "service.example.com", NewCredential("token-1"))
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/payload.fbx", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, gotAuth)
}

func TestClient_Do_PresetAuthorization(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer ts.Close()

	client := NewClient(nil, "", NewCredential("token-1"))
	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer other")
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer other", gotAuth)
}

func TestClient_SetUserAgent(t *testing.T) {
	var client Client
	client.SetUserAgent("rigpull/1.0")
	assert.Equal(t, "rigpull/1.0", client.Header.Get("User-Agent"))
}
