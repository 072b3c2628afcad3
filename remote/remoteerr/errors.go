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

// Package remoteerr defines the errors returned by the remote animation
// service.
package remoteerr

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rigpull/rigpull/errdef"
)

// maxErrorBytes specifies the default limit on how many response bytes are
// allowed in the server's error response.
// A typical error message is around 200 bytes. Hence, 8 KiB should be
// sufficient.
const maxErrorBytes int64 = 8 * 1024 // 8 KiB

// ErrorResponse represents an error response of the remote service.
type ErrorResponse struct {
	Method     string
	URL        *url.URL
	StatusCode int

	// Message is the message reported by the service, if any.
	Message string
}

// Error returns a error string describing the error.
func (err *ErrorResponse) Error() string {
	errmsg := err.Message
	if errmsg == "" {
		errmsg = http.StatusText(err.StatusCode)
	}
	var target string
	if err.URL != nil {
		target = err.URL.Redacted()
	}
	return fmt.Sprintf("%s %q: response status code %d: %s", err.Method, target, err.StatusCode, errmsg)
}

// Unwrap maps the status code to the common errors, so that callers can
// test for them with errors.Is.
func (err *ErrorResponse) Unwrap() error {
	switch err.StatusCode {
	case http.StatusUnauthorized:
		return errdef.ErrUnauthorized
	case http.StatusForbidden:
		return errdef.ErrForbidden
	case http.StatusNotFound:
		return errdef.ErrNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return errdef.ErrTimeout
	}
	return nil
}

// ParseErrorResponse parses the error returned by the remote service.
// The service reports errors as `{"message": "..."}` or `{"error": "..."}`;
// plain text bodies are kept as is.
func ParseErrorResponse(resp *http.Response) error {
	resultErr := &ErrorResponse{
		StatusCode: resp.StatusCode,
	}
	if resp.Request != nil {
		resultErr.Method = resp.Request.Method
		resultErr.URL = resp.Request.URL
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
	if err != nil || len(data) == 0 {
		return resultErr
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		if !strings.HasPrefix(strings.TrimSpace(string(data)), "<") {
			resultErr.Message = strings.TrimSpace(string(data))
		}
		return resultErr
	}
	switch {
	case body.Message != "":
		resultErr.Message = body.Message
	case body.Error != "":
		resultErr.Message = body.Error
	}
	return resultErr
}
