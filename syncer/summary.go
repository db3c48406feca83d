package syncer

import (
	"fmt"
	"io"
	"net/url"
	"slices"
	"time"
)

// Summary is the report of one run.
type Summary struct {
	RunID          string
	Kind           Kind
	ItemType       string
	FirstPage      int
	LastPage       int
	Available      int
	PagesProcessed int
	Records        int
	Counts         map[string]int
	Misses         int
	AlreadyDeleted int
	FailedRecords  int
	ConfirmedPage  int
	Watermark      string
	Failure        *Failure
	Duration       time.Duration
}

func (s *Summary) Succeeded() bool {
	return s.Failure == nil
}

func (s *Summary) Status() string {
	if s.Failure != nil {
		return "failed"
	}
	if s.LastPage < s.FirstPage {
		return "empty"
	}
	return "completed"
}

func (s *Summary) WriteTo(w io.Writer) (int64, error) {
	var n int64
	write := func(format string, args ...any) error {
		c, err := fmt.Fprintf(w, format+"\n", args...)
		n += int64(c)
		return err
	}
	if err := s.write(write); err != nil {
		return n, err
	}
	return n, nil
}

func (s *Summary) write(write func(string, ...any) error) error {
	switch {
	case s.Status() == "empty" && s.Kind == KindUpdate:
		return write("Nothing to update! Watermark: %s", s.Watermark)
	case s.Status() == "empty":
		return write("No delete-feed pages to process from page %d (%d available). Last purged page: %s", s.FirstPage, s.Available, s.Watermark)
	}
	if err := write("Processed %d of pages %d through %d (%d available), %d records.",
		s.PagesProcessed, s.FirstPage, s.LastPage, s.Available, s.Records); err != nil {
		return err
	}
	keys := make([]string, 0, len(s.Counts))
	for k := range s.Counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		var err error
		if s.Kind == KindUpdate {
			err = write("Pipeline %s processed %d items.", k, s.Counts[k])
		} else {
			err = write("Removed %d %s.", s.Counts[k], k)
		}
		if err != nil {
			return err
		}
	}
	if s.FailedRecords > 0 {
		if err := write("Failed to process %d records, see the log for their uris.", s.FailedRecords); err != nil {
			return err
		}
	}
	if s.Kind == KindPurge {
		if err := write("Skipped %d never synchronized and %d already removed.", s.Misses, s.AlreadyDeleted); err != nil {
			return err
		}
	}
	if s.Failure != nil {
		if err := write("An error occurred while processing page %d: %v", s.Failure.Page, s.Failure.Err); err != nil {
			return err
		}
		if s.Failure.PipelineID != "" {
			if err := write("Pipeline: %s", s.Failure.PipelineID); err != nil {
				return err
			}
		}
		if err := write("Parameters: %s", formatParams(s.Failure.Params)); err != nil {
			return err
		}
	}
	if s.Kind == KindUpdate {
		return write("Updated through: %s", s.Watermark)
	}
	return write("Purged through page: %s", s.Watermark)
}

func formatParams(params url.Values) string {
	if len(params) == 0 {
		return "(none)"
	}
	decoded, err := url.QueryUnescape(params.Encode())
	if err != nil {
		return params.Encode()
	}
	return decoded
}
