package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjlanasa/aspace-sync/config"
)

type fakeArchivesSpace struct {
	logins     atomic.Int32
	validToken atomic.Value
	search     func(w http.ResponseWriter, r *http.Request)
	deleteFeed func(w http.ResponseWriter, r *http.Request)
}

func newFakeArchivesSpace(t *testing.T) (*fakeArchivesSpace, *httptest.Server) {
	t.Helper()
	f := &fakeArchivesSpace{}
	f.validToken.Store("token-1")

	mux := http.NewServeMux()
	mux.HandleFunc("/users/admin/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("password") != "secret" {
			http.Error(w, `{"error":"Login failed"}`, http.StatusForbidden)
			return
		}
		f.logins.Add(1)
		fmt.Fprintf(w, `{"session":%q}`, f.validToken.Load().(string))
	})
	authed := func(next func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(sessionHeader) != f.validToken.Load().(string) {
				http.Error(w, `{"code":"SESSION_EXPIRED"}`, http.StatusPreconditionFailed)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("/search", authed(func(w http.ResponseWriter, r *http.Request) { f.search(w, r) }))
	mux.HandleFunc("/delete-feed", authed(func(w http.ResponseWriter, r *http.Request) { f.deleteFeed(w, r) }))

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return f, ts
}

func newTestSource(ts *httptest.Server, password string) *ArchivesSpaceSource {
	return NewArchivesSpaceSource(config.RemoteConfig{
		BaseURL:  ts.URL + "/",
		Username: "admin",
		Password: password,
		Timeout:  time.Second,
	})
}

func TestSearchDecodesPage(t *testing.T) {
	f, ts := newFakeArchivesSpace(t)
	var gotQuery url.Values
	f.search = func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `{"first_page":1,"last_page":2,"this_page":1,"total_hits":11,"results":[
			{"uri":"/repositories/2/resources/1","json":"{\"title\":\"A\"}","user_mtime":"2024-01-10T08:00:00Z"},
			{"uri":"/subjects/3","json":"{}","user_mtime":"garbage"}
		]}`)
	}

	source := newTestSource(ts, "secret")
	params := url.Values{"page": {"1"}, "sort": {"user_mtime asc"}}
	page, err := source.Search(context.Background(), params)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if gotQuery.Get("sort") != "user_mtime asc" || gotQuery.Get("page") != "1" {
		t.Errorf("unexpected query %v", gotQuery)
	}
	if page.LastPage != 2 || page.ThisPage != 1 || len(page.Results) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	want := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	if !page.Results[0].ModifiedTime.Equal(want) {
		t.Errorf("got modified time %v, want %v", page.Results[0].ModifiedTime, want)
	}
	if !page.Results[1].ModifiedTime.IsZero() {
		t.Errorf("expected zero modified time for unparsable user_mtime")
	}
	if page.Results[0].JSON != `{"title":"A"}` {
		t.Errorf("got json %q", page.Results[0].JSON)
	}
}

func TestDeleteFeedDecodesPage(t *testing.T) {
	f, ts := newFakeArchivesSpace(t)
	f.deleteFeed = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page_size") != "50" {
			t.Errorf("got page_size %q", r.URL.Query().Get("page_size"))
		}
		fmt.Fprint(w, `{"first_page":1,"last_page":10,"this_page":3,"results":["/subjects/1","/repositories/2/resources/4"]}`)
	}

	source := newTestSource(ts, "secret")
	page, err := source.DeleteFeed(context.Background(), url.Values{"page": {"3"}, "page_size": {"50"}})
	if err != nil {
		t.Fatalf("DeleteFeed() error = %v", err)
	}
	if page.LastPage != 10 || page.ThisPage != 3 || len(page.Results) != 2 || page.Results[1] != "/repositories/2/resources/4" {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestSessionReusedAndRenewed(t *testing.T) {
	f, ts := newFakeArchivesSpace(t)
	f.search = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"last_page":0,"this_page":1,"results":[]}`)
	}
	source := newTestSource(ts, "secret")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := source.Search(ctx, url.Values{"page": {"1"}}); err != nil {
			t.Fatal(err)
		}
	}
	if n := f.logins.Load(); n != 1 {
		t.Errorf("got %d logins, want 1", n)
	}

	// Expire the session server-side; the next request logs in again.
	f.validToken.Store("token-2")
	if _, err := source.Search(ctx, url.Values{"page": {"1"}}); err != nil {
		t.Fatalf("Search() after expiry error = %v", err)
	}
	if n := f.logins.Load(); n != 2 {
		t.Errorf("got %d logins, want 2", n)
	}
}

func TestLoginFailure(t *testing.T) {
	_, ts := newFakeArchivesSpace(t)
	source := newTestSource(ts, "wrong")

	_, err := source.Search(context.Background(), url.Values{"page": {"1"}})
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Search() error = %v, want *FetchError", err)
	}
	if fetchErr.StatusCode != http.StatusForbidden {
		t.Errorf("got status %d, want 403", fetchErr.StatusCode)
	}
}

func TestServerErrorIsFetchError(t *testing.T) {
	f, ts := newFakeArchivesSpace(t)
	f.search = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}
	source := newTestSource(ts, "secret")

	_, err := source.Search(context.Background(), url.Values{"page": {"4"}})
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Search() error = %v, want *FetchError", err)
	}
	if fetchErr.StatusCode != http.StatusInternalServerError || fetchErr.Page != "4" || fetchErr.Path != "/search" {
		t.Errorf("unexpected fetch error %+v", fetchErr)
	}
}

func TestMalformedResponseIsFetchError(t *testing.T) {
	f, ts := newFakeArchivesSpace(t)
	f.deleteFeed = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": "not a list"`)
	}
	source := newTestSource(ts, "secret")

	_, err := source.DeleteFeed(context.Background(), url.Values{"page": {"1"}})
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("DeleteFeed() error = %v, want *FetchError", err)
	}
}

type mockHTTPClient struct {
	err error
}

func (m *mockHTTPClient) Do(*http.Request) (*http.Response, error) {
	return nil, m.err
}

func TestTransportErrorIsFetchError(t *testing.T) {
	transportErr := errors.New("connection refused")
	source := NewArchivesSpaceSource(config.RemoteConfig{BaseURL: "http://aspace.invalid"}, &mockHTTPClient{err: transportErr})

	_, err := source.Search(context.Background(), url.Values{"page": {"1"}})
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Search() error = %v, want *FetchError", err)
	}
	if !errors.Is(err, transportErr) {
		t.Errorf("expected wrapped transport error, got %v", err)
	}
}

func TestDecodeUpdatePageTimestampLayouts(t *testing.T) {
	tests := []struct {
		userMtime string
		want      time.Time
	}{
		{"2024-01-10T08:00:00Z", time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)},
		{"2024-01-10T08:00:00.250Z", time.Date(2024, 1, 10, 8, 0, 0, 250000000, time.UTC)},
		{"2024-01-10T09:00:00+01:00", time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)},
		{"2024-01-10 08:00:00", time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)},
		{"2024-01-10T08:00:00", time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)},
		{"garbage", time.Time{}},
		{"", time.Time{}},
	}
	for _, tt := range tests {
		body := fmt.Sprintf(`{"last_page":1,"this_page":1,"results":[{"uri":"/subjects/1","json":"{}","user_mtime":%q}]}`, tt.userMtime)
		page, err := decodeUpdatePage([]byte(body))
		if err != nil {
			t.Fatalf("decodeUpdatePage(%q): %v", tt.userMtime, err)
		}
		if got := page.Results[0].ModifiedTime; !got.Equal(tt.want) {
			t.Errorf("user_mtime %q: got %v, want %v", tt.userMtime, got, tt.want)
		}
	}
}
