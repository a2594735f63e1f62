package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"feidelogin/authenticator"
)

// ErrResourceFetch means a downstream resource API call failed after
// authentication succeeded. It is surfaced distinctly from authentication
// failures so callers can tell "not logged in" from "upstream is down".
var ErrResourceFetch = errors.New("resource fetch failed")

const myGroupsPath = "groups/me/groups"

// Responses are passed through untouched; the cap only guards decoding.
const maxResponseSize = 1 << 20

// ResourceService calls downstream resource APIs with a cached access
// token. Each call is a pass-through proxy: no retries, no caching, and
// failures are surfaced, never swallowed.
type ResourceService struct {
	provider      authenticator.Provider
	groupsBaseURI string
	client        *http.Client
}

// NewResourceService creates a resource service. The userinfo endpoint
// comes from provider discovery; the groups API base is configured.
func NewResourceService(provider authenticator.Provider, groupsBaseURI string, client *http.Client) *ResourceService {
	if client == nil {
		client = http.DefaultClient
	}
	return &ResourceService{
		provider:      provider,
		groupsBaseURI: groupsBaseURI,
		client:        client,
	}
}

// FetchUserInfo retrieves the userinfo payload for the access token.
func (s *ResourceService) FetchUserInfo(ctx context.Context, accessToken string) (json.RawMessage, error) {
	endpoints, err := s.provider.Endpoints(ctx)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, endpoints.UserinfoEndpoint, accessToken)
}

// FetchGroups retrieves the caller's group memberships from the groups API.
func (s *ResourceService) FetchGroups(ctx context.Context, accessToken string) (json.RawMessage, error) {
	url := strings.TrimRight(s.groupsBaseURI, "/") + "/" + myGroupsPath
	return s.get(ctx, url, accessToken)
}

// get issues one bearer-authenticated GET and decodes the JSON body.
func (s *ResourceService) get(ctx context.Context, url, accessToken string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %v: %w", url, err, ErrResourceFetch)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: HTTP %d: %w", url, resp.StatusCode, ErrResourceFetch)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %v: %w", url, err, ErrResourceFetch)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("invalid JSON from %s: %w", url, ErrResourceFetch)
	}

	return json.RawMessage(body), nil
}
