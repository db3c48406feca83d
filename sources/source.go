package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjlanasa/aspace-sync/watermark"
)

// UpdateRecord is one row of the "updated since" search feed.
type UpdateRecord struct {
	URI       string `json:"uri"`
	JSON      string `json:"json"`
	UserMtime string `json:"user_mtime"`
	// ModifiedTime is UserMtime parsed; zero when it could not be parsed.
	ModifiedTime time.Time `json:"-"`
}

type UpdatePage struct {
	FirstPage int            `json:"first_page"`
	LastPage  int            `json:"last_page"`
	ThisPage  int            `json:"this_page"`
	TotalHits int            `json:"total_hits"`
	Results   []UpdateRecord `json:"results"`
}

type DeletePage struct {
	FirstPage int      `json:"first_page"`
	LastPage  int      `json:"last_page"`
	ThisPage  int      `json:"this_page"`
	Total     int      `json:"total"`
	Results   []string `json:"results"`
}

// FetchError reports a failed request against the remote API.
type FetchError struct {
	Path       string
	Page       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s", e.Path)
	if e.Page != "" {
		msg += fmt.Sprintf(" page %s", e.Page)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

var errUnauthorized = errors.New("unauthorized")

func decodeUpdatePage(body []byte) (*UpdatePage, error) {
	var page UpdatePage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, err
	}
	for i := range page.Results {
		rec := &page.Results[i]
		if rec.UserMtime == "" {
			continue
		}
		t, err := watermark.ParseTimestamp(rec.UserMtime)
		if err != nil {
			slog.Warn("ignoring unparsable user_mtime", "uri", rec.URI, "user_mtime", rec.UserMtime, "error", err)
			continue
		}
		rec.ModifiedTime = t
	}
	return &page, nil
}

func decodeDeletePage(body []byte) (*DeletePage, error) {
	var page DeletePage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
