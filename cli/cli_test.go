package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newRemote serves a single page of updates and a delete feed that fails
// on page 2.
func newRemote(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		record, _ := json.Marshal(map[string]any{
			"uri":            "/subjects/4",
			"jsonmodel_type": "subject",
			"terms":          []map[string]any{{"term": "Boston"}, {"term": "History"}},
		})
		_ = json.NewEncoder(w).Encode(map[string]any{
			"first_page": 1,
			"last_page":  1,
			"this_page":  1,
			"results": []map[string]any{
				{"uri": "/subjects/4", "json": string(record), "user_mtime": "2024-01-10T08:00:00Z"},
			},
		})
	})
	mux.HandleFunc("/delete-feed", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"first_page": 1,
			"last_page":  2,
			"this_page":  1,
			"results":    []string{"/subjects/9"},
		})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := fmt.Sprintf(`
remote:
  base_url: %q
sinks:
  entities:
    type: memory
routes:
  - uri_regex: '^/subjects/\d+$'
    pipeline: subject
pipelines:
  subject:
    processor: subject
    destination_type: taxonomy_term
    sink: entities
`, baseURL)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(&RootOptions{})
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(nil)
	for _, name := range []string{"update", "purge", "status"} {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Errorf("command %s not found: %v", name, err)
		}
	}
	if f := cmd.PersistentFlags().Lookup("verbose"); f == nil || f.Shorthand != "v" {
		t.Error("expected --verbose/-v flag")
	}
	if f := cmd.PersistentFlags().Lookup("config"); f == nil || f.DefValue != DefaultConfigPath {
		t.Error("expected --config flag defaulting to the bundled config")
	}
}

func TestUpdateCommand(t *testing.T) {
	path := writeConfig(t, newRemote(t).URL)
	out, err := execute(t, "--config", path, "update")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	for _, want := range []string{
		"Pipeline subject processed 1 items.",
		"Updated through: 2024-01-10T08:00:01Z",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestUpdateCommandRejectsBadOptions(t *testing.T) {
	path := writeConfig(t, newRemote(t).URL)
	tests := []struct {
		name string
		args []string
	}{
		{"unknown type", []string{"--config", path, "update", "widget"}},
		{"bad timestamp", []string{"--config", path, "update", "--update-time", "last tuesday"}},
		{"negative first page", []string{"--config", path, "purge", "--first-page=-1"}},
		{"negative purge max pages", []string{"--config", path, "purge", "--max-pages=-1"}},
		{"negative update max pages", []string{"--config", path, "update", "--max-pages=-1"}},
		{"missing config", []string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "status"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if code := GetExitCode(err); code != ExitCommandError {
				t.Errorf("exit code = %d (%v), want %d", code, err, ExitCommandError)
			}
		})
	}
}

func TestPurgeCommandFailure(t *testing.T) {
	path := writeConfig(t, newRemote(t).URL)
	out, err := execute(t, "--config", path, "purge")
	if code := GetExitCode(err); code != ExitFailure {
		t.Fatalf("exit code = %d (%v), want %d", code, err, ExitFailure)
	}
	for _, want := range []string{
		"An error occurred while processing page 2",
		"Parameters: page=2&page_size=50",
		"Purged through page: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusCommandHonorsConfigPathEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, "http://localhost:1"))
	out, err := execute(t, "--config", filepath.Join(t.TempDir(), "ignored.yaml"), "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	want := "Update watermark: 1970-01-01T00:00:00Z (default)\nPurge watermark: none\nUpdate running: no\nPurge running: no\n"
	if out != want {
		t.Errorf("status output = %q, want %q", out, want)
	}
}
