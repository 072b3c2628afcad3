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

// Package fakeservice provides an in-memory animation service speaking the
// catalog, character, export and monitor endpoints, for tests.
package fakeservice

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// DefaultCharacterID is the primary character of a new server.
const DefaultCharacterID = "char-1"

// Product is a catalog entry of the fake service.
type Product struct {
	ID   string
	Type string
	Name string
}

// Export is an export request received by the fake service.
type Export struct {
	CharacterID string            `json:"character_id"`
	GMSHash     []json.RawMessage `json:"gms_hash"`
	Preferences map[string]string `json:"preferences"`
	ProductName string            `json:"product_name"`
	Type        string            `json:"type"`
}

// job is the export in progress of the character.
type job struct {
	product   Product
	skin      bool
	pollsLeft int
	failure   string
}

// failure is a scripted failure of the requests matching a path prefix.
type failure struct {
	prefix string
	status int
	times  int
}

// Server is a fake animation service. It implements http.Handler.
// The exported fields must be set before the server handles requests.
type Server struct {
	// Token is the expected bearer token. If empty, requests are not
	// authorized.
	Token string

	// CharacterID is the primary character. If empty, the service reports
	// no primary character.
	CharacterID string

	// Products is the catalog, in listing order.
	Products []Product

	// PollsBeforeReady is the number of polls answered with "processing"
	// before an export completes.
	PollsBeforeReady int

	// FailExports maps product names to the failure message reported by
	// the monitor.
	FailExports map[string]string

	// FailPayloads maps product names to the status returned when their
	// payload is fetched.
	FailPayloads map[string]int

	// OnExport, if set, is called with the product name whenever an export
	// is requested.
	OnExport func(name string)

	mu       sync.Mutex
	expired  bool
	switched *string
	job      *job
	exports  []Export
	requests map[string]int
	failures []*failure
	payloads map[string]http.Header
}

// New returns a fake service with the given catalog.
func New(token string, products ...Product) *Server {
	return &Server{
		Token:       token,
		CharacterID: DefaultCharacterID,
		Products:    products,
	}
}

// Animation returns an animation product.
func Animation(id, name string) Product {
	return Product{ID: id, Type: "Motion", Name: name}
}

// Pose returns a pose product.
func Pose(id, name string) Product {
	return Product{ID: id, Type: "Pose", Name: name}
}

// Fail makes the next n requests whose path starts with prefix fail with
// the status.
func (s *Server) Fail(prefix string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{prefix: prefix, status: status, times: n})
}

// ExpireToken makes the service reject the token from now on.
func (s *Server) ExpireToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = true
}

// SwitchCharacter makes id the primary character from now on.
func (s *Server) SwitchCharacter(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switched = &id
}

func (s *Server) characterID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.switched != nil {
		return *s.switched
	}
	return s.CharacterID
}

// Exports returns the export requests received so far.
func (s *Server) Exports() []Export {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Export(nil), s.exports...)
}

// Requests returns the number of requests received for the path,
// including failed ones.
func (s *Server) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// PayloadHeader returns the headers of the last fetch of the payload of
// the product.
func (s *Server) PayloadHeader(id string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloads[id]
}

// Payload returns the content served for the product.
func Payload(p Product, skin bool) string {
	return fmt.Sprintf("Kaydara FBX Binary %s skin=%t", p.Name, skin)
}

// ServeHTTP serves the fake service.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.requests == nil {
		s.requests = make(map[string]int)
	}
	s.requests[r.URL.Path]++
	for _, f := range s.failures {
		if f.times > 0 && strings.HasPrefix(r.URL.Path, f.prefix) {
			f.times--
			s.mu.Unlock()
			w.WriteHeader(f.status)
			return
		}
	}
	expired := s.expired
	s.mu.Unlock()

	if strings.HasPrefix(r.URL.Path, "/payloads/") {
		s.servePayload(w, r)
		return
	}
	if expired || (s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid token"})
		return
	}

	switch path := r.URL.Path; {
	case path == "/api/v1/products" && r.Method == http.MethodGet:
		s.serveCatalog(w, r)
	case path == "/api/v1/characters/primary" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{
			"primary_character_id":   s.characterID(),
			"primary_character_name": "Y Bot",
		})
	case path == "/api/v1/animations/export" && r.Method == http.MethodPost:
		s.serveExport(w, r)
	case strings.HasPrefix(path, "/api/v1/characters/") && strings.HasSuffix(path, "/monitor"):
		s.serveMonitor(w, r)
	case strings.HasPrefix(path, "/api/v1/products/") && r.Method == http.MethodGet:
		s.serveProduct(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
	}
}

func (s *Server) serveCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 96
	}
	query := strings.ToLower(q.Get("query"))

	var matched []Product
	for _, p := range s.Products {
		if query == "" || strings.Contains(strings.ToLower(p.Name), query) {
			matched = append(matched, p)
		}
	}
	numPages := (len(matched) + limit - 1) / limit
	results := []map[string]string{}
	for i := (page - 1) * limit; i < len(matched) && i < page*limit; i++ {
		p := matched[i]
		results = append(results, map[string]string{
			"id":          p.ID,
			"type":        p.Type,
			"name":        p.Name,
			"description": "",
			"thumbnail":   "/thumbnails/" + p.ID + ".gif",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"pagination": map[string]int{
			"page":        page,
			"num_pages":   numPages,
			"limit":       limit,
			"num_results": len(matched),
		},
	})
}

func (s *Server) serveProduct(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/products/")
	if _, ok := s.product(id); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "product not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id": id,
		"details": map[string]any{
			"gms_hash": map[string]any{
				"model-id":  42,
				"mirror":    false,
				"trim":      []int{0, 100},
				"overdrive": 0,
				"params":    [][]any{{"Posture", 0.5}, {"Arm-Space", 0}},
				"arm-space": 0,
				"inplace":   false,
			},
		},
	})
}

func (s *Server) serveExport(w http.ResponseWriter, r *http.Request) {
	var req Export
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	p, ok := s.productByName(req.ProductName)
	if !ok || req.CharacterID != s.characterID() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid export request"})
		return
	}

	s.mu.Lock()
	s.exports = append(s.exports, req)
	s.job = &job{
		product:   p,
		skin:      req.Preferences["skin"] == "true",
		pollsLeft: s.PollsBeforeReady,
		failure:   s.FailExports[p.Name],
	}
	s.mu.Unlock()

	if s.OnExport != nil {
		s.OnExport(p.Name)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "processing"})
}

func (s *Server) serveMonitor(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.job
	switch {
	case j == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "not_started"})
	case j.pollsLeft > 0:
		j.pollsLeft--
		writeJSON(w, http.StatusOK, map[string]string{"status": "processing"})
	case j.failure != "":
		writeJSON(w, http.StatusOK, map[string]string{"status": "failed", "message": j.failure})
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"status":     "completed",
			"job_result": fmt.Sprintf("/payloads/%s?skin=%t&sig=abc", j.product.ID, j.skin),
		})
	}
}

func (s *Server) servePayload(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/payloads/")
	p, ok := s.product(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.mu.Lock()
	if s.payloads == nil {
		s.payloads = make(map[string]http.Header)
	}
	s.payloads[id] = r.Header.Clone()
	s.mu.Unlock()

	if status, ok := s.FailPayloads[p.Name]; ok {
		w.WriteHeader(status)
		return
	}
	body := Payload(p, r.URL.Query().Get("skin") == "true")
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	_, _ = w.Write([]byte(body))
}

func (s *Server) product(id string) (Product, bool) {
	for _, p := range s.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

func (s *Server) productByName(name string) (Product, bool) {
	for _, p := range s.Products {
		if p.Name == name {
			return p, true
		}
	}
	return Product{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
