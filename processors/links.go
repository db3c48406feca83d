package processors

import (
	"net/url"
	"slices"

	"github.com/fjlanasa/aspace-sync/sinks"
)

var allowedSchemes = []string{"http", "https", "ftp", "mailto"}

type ExternalDocument struct {
	Title    string `json:"title"`
	Location string `json:"location"`
	Publish  bool   `json:"publish"`
}

// ExternalDocumentLinks keeps published documents whose location uses an
// allowed scheme.
func ExternalDocumentLinks(docs []ExternalDocument) []sinks.Link {
	var links []sinks.Link
	for _, doc := range docs {
		if !doc.Publish || doc.Location == "" {
			continue
		}
		u, err := url.Parse(doc.Location)
		if err != nil || !slices.Contains(allowedSchemes, u.Scheme) {
			continue
		}
		links = append(links, sinks.Link{Title: doc.Title, URI: doc.Location})
	}
	return links
}
