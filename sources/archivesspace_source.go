package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/fjlanasa/aspace-sync/config"
)

const sessionHeader = "X-ArchivesSpace-Session"

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ArchivesSpaceSource issues authenticated requests against the ArchivesSpace
// backend API.
type ArchivesSpaceSource struct {
	cfg    config.RemoteConfig
	client HTTPClient

	mu      sync.Mutex
	session string
}

func NewArchivesSpaceSource(cfg config.RemoteConfig, client ...HTTPClient) *ArchivesSpaceSource {
	var c HTTPClient = &http.Client{Timeout: cfg.Timeout}
	if len(client) > 0 && client[0] != nil {
		c = client[0]
	}
	return &ArchivesSpaceSource{cfg: cfg, client: c}
}

// Search queries the "updated since" feed.
func (s *ArchivesSpaceSource) Search(ctx context.Context, params url.Values) (*UpdatePage, error) {
	body, err := s.get(ctx, "/search", params)
	if err != nil {
		return nil, err
	}
	page, err := decodeUpdatePage(body)
	if err != nil {
		return nil, &FetchError{Path: "/search", Page: params.Get("page"), Err: fmt.Errorf("decode response: %w", err)}
	}
	return page, nil
}

// DeleteFeed queries the tombstone feed.
func (s *ArchivesSpaceSource) DeleteFeed(ctx context.Context, params url.Values) (*DeletePage, error) {
	body, err := s.get(ctx, "/delete-feed", params)
	if err != nil {
		return nil, err
	}
	page, err := decodeDeletePage(body)
	if err != nil {
		return nil, &FetchError{Path: "/delete-feed", Page: params.Get("page"), Err: fmt.Errorf("decode response: %w", err)}
	}
	return page, nil
}

func (s *ArchivesSpaceSource) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	session, err := s.currentSession(ctx, false)
	if err != nil {
		return nil, err
	}
	body, status, err := s.do(ctx, path, params, session)
	if errors.Is(err, errUnauthorized) && session != "" {
		slog.Debug("archivesspace session rejected, logging in again", "path", path, "status", status)
		if session, err = s.currentSession(ctx, true); err != nil {
			return nil, err
		}
		body, status, err = s.do(ctx, path, params, session)
	}
	if errors.Is(err, errUnauthorized) {
		return nil, &FetchError{Path: path, Page: params.Get("page"), StatusCode: status, Err: err}
	}
	return body, err
}

func (s *ArchivesSpaceSource) do(ctx context.Context, path string, params url.Values, session string) ([]byte, int, error) {
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, &FetchError{Path: path, Page: params.Get("page"), Err: err}
	}
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, &FetchError{Path: path, Page: params.Get("page"), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &FetchError{Path: path, Page: params.Get("page"), StatusCode: resp.StatusCode, Err: err}
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusPreconditionFailed:
		// 412 is how ArchivesSpace reports an expired session.
		return nil, resp.StatusCode, errUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &FetchError{Path: path, Page: params.Get("page"), StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(body)))}
	}
	return body, resp.StatusCode, nil
}

func (s *ArchivesSpaceSource) currentSession(ctx context.Context, renew bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Username == "" {
		return "", nil
	}
	if s.session != "" && !renew {
		return s.session, nil
	}
	session, err := s.login(ctx)
	if err != nil {
		return "", err
	}
	s.session = session
	return session, nil
}

func (s *ArchivesSpaceSource) login(ctx context.Context) (string, error) {
	path := "/users/" + url.PathEscape(s.cfg.Username) + "/login"
	form := url.Values{"password": {s.cfg.Password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.cfg.BaseURL, "/")+path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &FetchError{Path: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &FetchError{Path: path, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("login failed")}
	}

	var payload struct {
		Session string `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &FetchError{Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode login response: %w", err)}
	}
	if payload.Session == "" {
		return "", &FetchError{Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("login response has no session")}
	}
	return payload.Session, nil
}
