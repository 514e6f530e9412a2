// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/bureau-foundation/mapview/lib/secret"
)

// Session is a portal client bound to an identity. Anonymous sessions
// send no token. Session is safe for concurrent use.
type Session struct {
	client   *Client
	username string
	password *secret.Buffer

	mu    sync.Mutex
	token *secret.Buffer
	orgID string
}

// BaseURL returns the portal REST base, ending in a slash.
func (s *Session) BaseURL() string { return s.client.baseURL }

// Username returns the account name, or "" for anonymous sessions.
func (s *Session) Username() string { return s.username }

// Password returns the account password, or "" for anonymous sessions.
// The string is a heap copy; use it only at a serialization boundary.
func (s *Session) Password() string {
	if s.password == nil {
		return ""
	}
	return s.password.String()
}

// Anonymous reports whether the session has no identity.
func (s *Session) Anonymous() bool { return s.username == "" }

// Close releases the session's password and token.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != nil {
		s.token.Close()
		s.token = nil
	}
	if s.password != nil {
		s.password.Close()
		s.password = nil
	}
	return nil
}

func (s *Session) refreshToken(ctx context.Context) error {
	s.mu.Lock()
	password := s.password
	s.mu.Unlock()
	if password == nil {
		return fmt.Errorf("portal: session for %s is closed", s.username)
	}

	token, err := s.client.GenerateToken(ctx, s.username, password)
	if err != nil {
		return err
	}
	buffer, err := secret.NewFromString(token.Token)
	if err != nil {
		return fmt.Errorf("portal: protecting token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != nil {
		s.token.Close()
	}
	s.token = buffer
	return nil
}

// get performs an authenticated GET. An invalid or expired token
// triggers one fresh login and a retry.
func (s *Session) get(ctx context.Context, requestURL string, query url.Values) ([]byte, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, requestURL, s.withToken(query), nil)
	if err == nil || s.Anonymous() || !IsPortalError(err, ErrCodeInvalidToken) {
		return body, err
	}

	s.client.logger.Info("portal token rejected, logging in again", "username", s.username)
	if refreshErr := s.refreshToken(ctx); refreshErr != nil {
		return nil, fmt.Errorf("portal: refreshing token after %v: %w", err, refreshErr)
	}
	return s.client.doRequest(ctx, http.MethodGet, requestURL, s.withToken(query), nil)
}

func (s *Session) withToken(query url.Values) url.Values {
	out := url.Values{}
	for key, values := range query {
		out[key] = values
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != nil {
		out.Set("token", s.token.String())
	}
	return out
}

// Properties returns portals/self.
func (s *Session) Properties(ctx context.Context) (*Properties, error) {
	body, err := s.get(ctx, s.client.baseURL+"portals/self", nil)
	if err != nil {
		return nil, fmt.Errorf("portal: fetching properties: %w", err)
	}
	var properties Properties
	if err := json.Unmarshal(body, &properties); err != nil {
		return nil, fmt.Errorf("portal: failed to parse properties: %w", err)
	}
	s.mu.Lock()
	s.orgID = properties.ID
	s.mu.Unlock()
	return &properties, nil
}

// SearchGroups runs a group search. When outsideOrg is false the search
// is restricted to the session's organization.
func (s *Session) SearchGroups(ctx context.Context, query string, outsideOrg bool) ([]Group, error) {
	if !outsideOrg {
		s.mu.Lock()
		orgID := s.orgID
		s.mu.Unlock()
		if orgID == "" {
			properties, err := s.Properties(ctx)
			if err != nil {
				return nil, err
			}
			orgID = properties.ID
		}
		if orgID != "" {
			query = "(" + query + ") AND orgid:" + orgID
		}
	}

	body, err := s.get(ctx, s.client.baseURL+"community/groups", url.Values{
		"q":   {query},
		"num": {"100"},
	})
	if err != nil {
		return nil, fmt.Errorf("portal: searching groups %q: %w", query, err)
	}
	var response groupSearchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("portal: failed to parse group search: %w", err)
	}
	return response.Results, nil
}

// GroupContent lists the items shared to a group.
func (s *Session) GroupContent(ctx context.Context, groupID string) ([]Item, error) {
	body, err := s.get(ctx, s.client.baseURL+"content/groups/"+url.PathEscape(groupID), nil)
	if err != nil {
		return nil, fmt.Errorf("portal: listing group %s: %w", groupID, err)
	}
	var response groupContentResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("portal: failed to parse group content: %w", err)
	}
	return response.Items, nil
}

// Item fetches an item's metadata.
func (s *Session) Item(ctx context.Context, itemID string) (*Item, error) {
	body, err := s.get(ctx, s.client.baseURL+"content/items/"+url.PathEscape(itemID), nil)
	if err != nil {
		return nil, fmt.Errorf("portal: fetching item %s: %w", itemID, err)
	}
	var item Item
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("portal: failed to parse item %s: %w", itemID, err)
	}
	return &item, nil
}

// ItemData fetches an item's JSON data. An item with no data returns
// (nil, nil).
func (s *Session) ItemData(ctx context.Context, itemID string) (map[string]any, error) {
	body, err := s.get(ctx, s.client.baseURL+"content/items/"+url.PathEscape(itemID)+"/data", nil)
	if err != nil {
		return nil, fmt.Errorf("portal: fetching data for item %s: %w", itemID, err)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal(trimmed, &data); err != nil {
		return nil, fmt.Errorf("portal: item %s data is not a JSON object: %w", itemID, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// WebMap fetches a web map item and its definition.
func (s *Session) WebMap(ctx context.Context, itemID string) (*WebMap, error) {
	item, err := s.Item(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.IsWebMap() {
		return nil, fmt.Errorf("portal: item %s is a %q, not a web map", itemID, item.Type)
	}
	data, err := s.ItemData(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return &WebMap{Item: item, Data: data}, nil
}

// Service fetches a service description and builds its layers. Feature
// services expose one layer per sublayer; map, image, and vector tile
// services are a single layer at the service URL.
func (s *Session) Service(ctx context.Context, serviceURL string) (*Service, error) {
	serviceURL = strings.TrimRight(serviceURL, "/")
	body, err := s.get(ctx, serviceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("portal: describing service %s: %w", serviceURL, err)
	}
	var response serviceResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("portal: failed to parse service %s: %w", serviceURL, err)
	}

	service := &Service{URL: serviceURL, Name: response.Name}
	switch {
	case strings.HasSuffix(serviceURL, "/FeatureServer"):
		for _, sublayer := range response.Layers {
			service.Layers = append(service.Layers, &Layer{
				URL:        serviceURL + "/" + strconv.Itoa(sublayer.ID),
				Type:       "FeatureLayer",
				Properties: map[string]any{"title": sublayer.Name},
			})
		}
	case strings.HasSuffix(serviceURL, "/ImageServer"):
		service.Layers = []LayerDescriber{&ImageryLayer{Layer: Layer{URL: serviceURL, Type: "ImageryLayer"}}}
	case strings.HasSuffix(serviceURL, "/VectorTileServer"):
		service.Layers = []LayerDescriber{&Layer{URL: serviceURL, Type: "VectorTileLayer"}}
	case strings.HasSuffix(serviceURL, "/MapServer"):
		service.Layers = []LayerDescriber{&Layer{URL: serviceURL, Type: "MapImageLayer"}}
	default:
		for _, sublayer := range response.Layers {
			service.Layers = append(service.Layers, &Layer{
				URL:  serviceURL + "/" + strconv.Itoa(sublayer.ID),
				Type: "FeatureLayer",
			})
		}
	}
	return service, nil
}

// ItemLayers returns a LayerContainer for an item backed by a service.
// Layers are resolved when the container is read.
func (s *Session) ItemLayers(item *Item) LayerContainer {
	return &itemLayers{session: s, item: item}
}

type itemLayers struct {
	session *Session
	item    *Item
}

func (l *itemLayers) ContainerLayers(ctx context.Context) ([]LayerDescriber, error) {
	if l.item.URL == "" {
		return nil, nil
	}
	service, err := l.session.Service(ctx, l.item.URL)
	if err != nil {
		return nil, err
	}
	return service.Layers, nil
}
