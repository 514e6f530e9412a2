// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package portaltest serves a scripted portal over httptest for tests
// of code that talks to a portal.
package portaltest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/bureau-foundation/mapview/portal"
)

// Fixture is the content the fake portal serves.
type Fixture struct {
	// Username and Password are the only accepted credentials. Token is
	// issued on login; an empty Token issues "token-1".
	Username string
	Password string
	Token    string

	Properties portal.Properties

	// Groups is returned for every group search.
	Groups []portal.Group

	// GroupItems maps group ID to its content.
	GroupItems map[string][]portal.Item

	// Items and ItemData are served from content/items/{id} and
	// content/items/{id}/data. An item missing from ItemData serves an
	// empty body.
	Items    map[string]portal.Item
	ItemData map[string]map[string]any

	// Services maps a service path (for example
	// "/arcgis/rest/services/Parcels/FeatureServer") to its description.
	Services map[string]map[string]any
}

// Server is a running fake portal.
type Server struct {
	*httptest.Server
	fixture Fixture

	mu        sync.Mutex
	requests  []string
	tokens    int
	current   string
	failPaths map[string]int
}

const restPrefix = "/sharing/rest/"

// NewServer starts a fake portal serving fixture. It is closed when the
// test completes.
func NewServer(t *testing.T, fixture Fixture) *Server {
	t.Helper()
	server := &Server{fixture: fixture, failPaths: make(map[string]int)}
	server.Server = httptest.NewServer(http.HandlerFunc(server.serve))
	t.Cleanup(server.Close)
	return server
}

// PortalURL returns the sharing REST base URL, ending in a slash.
func (s *Server) PortalURL() string {
	return s.Server.URL + restPrefix
}

// Requests returns the request paths served, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Count returns how many requests were made to path (relative to the
// REST base for portal endpoints, absolute for services).
func (s *Server) Count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, request := range s.requests {
		if request == path || request == restPrefix+path {
			count++
		}
	}
	return count
}

// ExpireToken invalidates the issued token; the next request bearing it
// receives a 498 error.
func (s *Server) ExpireToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = ""
}

// FailNext makes the next n requests to path return a 500 error.
func (s *Server) FailNext(path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPaths[path] = n
}

// SetGroups replaces the group search result.
func (s *Server) SetGroups(groups []portal.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixture.Groups = groups
}

func (s *Server) serve(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	path := request.URL.Path
	s.requests = append(s.requests, path)
	relative := strings.TrimPrefix(path, restPrefix)
	failing := false
	for _, key := range []string{relative, path} {
		if s.failPaths[key] > 0 {
			s.failPaths[key]--
			failing = true
			break
		}
	}
	s.mu.Unlock()

	if failing {
		writer.WriteHeader(http.StatusInternalServerError)
		writer.Write([]byte("internal error"))
		return
	}
	if err := request.ParseForm(); err != nil {
		writeError(writer, http.StatusBadRequest, 400, err.Error())
		return
	}
	if request.Form.Get("f") != "json" {
		writeError(writer, http.StatusOK, 400, "f=json is required")
		return
	}

	if relative == "generateToken" {
		s.generateToken(writer, request)
		return
	}

	if token := request.Form.Get("token"); token != "" {
		s.mu.Lock()
		valid := token == s.current
		s.mu.Unlock()
		if !valid {
			writeError(writer, http.StatusOK, portal.ErrCodeInvalidToken, "Invalid token.")
			return
		}
	}

	switch {
	case relative == "portals/self":
		writeJSON(writer, s.fixture.Properties)

	case relative == "community/groups":
		s.mu.Lock()
		groups := s.fixture.Groups
		s.mu.Unlock()
		writeJSON(writer, map[string]any{"total": len(groups), "results": groups})

	case strings.HasPrefix(relative, "content/groups/"):
		groupID := strings.TrimPrefix(relative, "content/groups/")
		items := s.fixture.GroupItems[groupID]
		writeJSON(writer, map[string]any{"total": len(items), "items": items})

	case strings.HasPrefix(relative, "content/items/") && strings.HasSuffix(relative, "/data"):
		itemID := strings.TrimSuffix(strings.TrimPrefix(relative, "content/items/"), "/data")
		data, ok := s.fixture.ItemData[itemID]
		if !ok {
			return
		}
		writeJSON(writer, data)

	case strings.HasPrefix(relative, "content/items/"):
		itemID := strings.TrimPrefix(relative, "content/items/")
		item, ok := s.fixture.Items[itemID]
		if !ok {
			writeError(writer, http.StatusOK, portal.ErrCodeNotFound, "Item does not exist or is inaccessible.")
			return
		}
		writeJSON(writer, item)

	default:
		if description, ok := s.fixture.Services[path]; ok {
			writeJSON(writer, description)
			return
		}
		writeError(writer, http.StatusNotFound, portal.ErrCodeNotFound, "not found: "+path)
	}
}

func (s *Server) generateToken(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writeError(writer, http.StatusOK, 405, "generateToken requires POST")
		return
	}
	if request.PostForm.Get("username") != s.fixture.Username ||
		request.PostForm.Get("password") != s.fixture.Password {
		writeError(writer, http.StatusOK, 400, "Unable to generate token.", "Invalid username or password.")
		return
	}

	s.mu.Lock()
	s.tokens++
	token := s.fixture.Token
	if token == "" || s.tokens > 1 {
		token = "token-" + strconv.Itoa(s.tokens)
	}
	s.current = token
	s.mu.Unlock()

	writeJSON(writer, map[string]any{"token": token, "expires": 1893456000000, "ssl": true})
}

func writeJSON(writer http.ResponseWriter, value any) {
	writer.Header().Set("Content-Type", "application/json")
	json.NewEncoder(writer).Encode(value)
}

func writeError(writer http.ResponseWriter, status, code int, message string, details ...string) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if details == nil {
		details = []string{}
	}
	json.NewEncoder(writer).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": message, "details": details},
	})
}
