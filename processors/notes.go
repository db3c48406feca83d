package processors

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type note struct {
	JSONModelType string          `json:"jsonmodel_type"`
	Type          string          `json:"type"`
	Publish       bool            `json:"publish"`
	Content       json.RawMessage `json:"content"`
	Subnotes      []subnote       `json:"subnotes"`
}

type subnote struct {
	JSONModelType string          `json:"jsonmodel_type"`
	Publish       bool            `json:"publish"`
	Label         string          `json:"label"`
	Content       json.RawMessage `json:"content"`
	Items         json.RawMessage `json:"items"`
	Enumeration   string          `json:"enumeration"`
	Levels        []outlineLevel  `json:"levels"`
	XLink         *struct {
		Href  string `json:"href"`
		Title string `json:"title"`
	} `json:"xlink"`
}

type chronologyItem struct {
	EventDate string   `json:"event_date"`
	Events    []string `json:"events"`
}

type definedItem struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type outlineLevel struct {
	Items []outlineItem `json:"items"`
}

// outlineItem is either plain text or a nested level.
type outlineItem struct {
	Text  string
	Level *outlineLevel
}

func (o *outlineItem) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &o.Text); err == nil {
		return nil
	}
	o.Level = &outlineLevel{}
	return json.Unmarshal(data, o.Level)
}

var inlineTags = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`<emph[^>]*>([^<]+)</emph>`), `<em>${1}</em>`},
	{regexp.MustCompile(`<ref ([^<]+)</ref>`), `<a ${1}</a>`},
	{regexp.MustCompile(`<extref .*href="(.*?)".*>([^<]+)</extref>`), `<a href="${1}">${2}</a>`},
}

// cleanup maps EAD inline markup to HTML and wraps each non-blank line in a
// paragraph.
func cleanup(s string) string {
	for _, t := range inlineTags {
		s = t.pattern.ReplaceAllString(s, t.repl)
	}
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			b.WriteString("<p>")
			b.WriteString(trimmed)
			b.WriteString("</p>")
		}
	}
	return b.String()
}

// contentLines accepts content stored either as a single string or a list.
func contentLines(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("decode note content: %w", err)
	}
	return lines, nil
}

// RenderNotes renders every published note, optionally limited to one note
// type, and concatenates the results.
func RenderNotes(notes []json.RawMessage, noteType string) (string, error) {
	var b strings.Builder
	for _, raw := range notes {
		html, err := RenderNote(raw, noteType)
		if err != nil {
			return "", err
		}
		b.WriteString(html)
	}
	return b.String(), nil
}

// RenderNote returns the HTML for a single note, or "" when the note is
// unpublished or filtered out.
func RenderNote(raw json.RawMessage, noteType string) (string, error) {
	var n note
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("decode note: %w", err)
	}
	if !n.Publish || (noteType != "" && noteType != n.Type) {
		return "", nil
	}
	var b strings.Builder
	switch n.JSONModelType {
	case "note_singlepart":
		lines, err := contentLines(n.Content)
		if err != nil {
			return "", err
		}
		for _, line := range lines {
			b.WriteString(cleanup(line))
		}
	case "note_multipart", "note_bioghist":
		for _, sub := range n.Subnotes {
			if !sub.Publish {
				continue
			}
			if err := renderSubnote(&b, sub); err != nil {
				return "", err
			}
		}
	}
	return b.String(), nil
}

func renderSubnote(b *strings.Builder, sub subnote) error {
	fmt.Fprintf(b, "<div class=\"subnote %s\">\n", sub.JSONModelType)
	if sub.Label != "" {
		fmt.Fprintf(b, "<div class=\"subnote_label\">%s</div>\n", sub.Label)
	}
	switch sub.JSONModelType {
	case "note_abstract", "note_citation":
		lines, err := contentLines(sub.Content)
		if err != nil {
			return err
		}
		for _, line := range lines {
			b.WriteString(cleanup(line))
		}
		if sub.XLink != nil && sub.XLink.Href != "" {
			fmt.Fprintf(b, "<a href=\"%s\">%s</a>", sub.XLink.Href, sub.XLink.Title)
		}
	case "note_text":
		lines, err := contentLines(sub.Content)
		if err != nil {
			return err
		}
		b.WriteString(cleanup(strings.Join(lines, "\n")))
	case "note_chronology":
		var items []chronologyItem
		if err := decodeItems(sub.Items, &items); err != nil {
			return err
		}
		if len(items) > 0 {
			b.WriteString("<dl>\n")
			for _, item := range items {
				fmt.Fprintf(b, "<dt>%s</dt>", item.EventDate)
				for _, event := range item.Events {
					fmt.Fprintf(b, "<dd>%s</dd>\n", event)
				}
			}
			b.WriteString("</dl>\n")
		}
	case "note_orderedlist":
		var items []string
		if err := decodeItems(sub.Items, &items); err != nil {
			return err
		}
		if len(items) > 0 {
			fmt.Fprintf(b, "<ol class=\"%s\">\n", sub.Enumeration)
			for _, item := range items {
				fmt.Fprintf(b, "<li>%s</li>", item)
			}
			b.WriteString("</ol>\n")
		}
	case "note_definedlist":
		var items []definedItem
		if err := decodeItems(sub.Items, &items); err != nil {
			return err
		}
		if len(items) > 0 {
			b.WriteString("<dl>\n")
			for _, item := range items {
				fmt.Fprintf(b, "<dt>%s</dt><dd>%s</dd>", item.Label, item.Value)
			}
			b.WriteString("</dl>\n")
		}
	case "note_outline":
		levels := make([]outlineItem, 0, len(sub.Levels))
		for i := range sub.Levels {
			levels = append(levels, outlineItem{Level: &sub.Levels[i]})
		}
		renderOutline(b, levels)
	}
	b.WriteString("</div>")
	return nil
}

func decodeItems(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode note items: %w", err)
	}
	return nil
}

func renderOutline(b *strings.Builder, items []outlineItem) {
	b.WriteString("<ol>\n")
	for _, item := range items {
		b.WriteString("<li>")
		if item.Level != nil {
			renderOutline(b, item.Level.Items)
		} else {
			b.WriteString(item.Text)
		}
		b.WriteString("</li>\n")
	}
	b.WriteString("</ol>\n")
}
