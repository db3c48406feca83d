package processors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fjlanasa/aspace-sync/config"
	"github.com/fjlanasa/aspace-sync/sinks"
)

// ErrSkipRecord marks a record the pipeline should pass over without failing.
var ErrSkipRecord = errors.New("skip record")

// Processor turns a remote record payload into an entity. The caller assigns
// the entity's ID and Type.
type Processor interface {
	Process(payload []byte) (sinks.Entity, error)
}

type ref struct {
	Ref string `json:"ref"`
}

type instance struct {
	SubContainer *struct {
		TopContainer *ref `json:"top_container"`
	} `json:"sub_container"`
}

type term struct {
	Term string `json:"term"`
}

type record struct {
	URI               string             `json:"uri"`
	JSONModelType     string             `json:"jsonmodel_type"`
	Title             string             `json:"title"`
	DisplayString     string             `json:"display_string"`
	Name              string             `json:"name"`
	Publish           *bool              `json:"publish"`
	ID0               string             `json:"id_0"`
	ID1               string             `json:"id_1"`
	ID2               string             `json:"id_2"`
	ID3               string             `json:"id_3"`
	ComponentID       string             `json:"component_id"`
	Notes             []json.RawMessage  `json:"notes"`
	ExternalDocuments []ExternalDocument `json:"external_documents"`
	Parent            *ref               `json:"parent"`
	Resource          *ref               `json:"resource"`
	LinkedAgents      []ref              `json:"linked_agents"`
	Subjects          []ref              `json:"subjects"`
	Instances         []instance         `json:"instances"`
	DisplayName       *struct {
		SortName string `json:"sort_name"`
	} `json:"display_name"`
	Terms     []term `json:"terms"`
	Type      string `json:"type"`
	Indicator string `json:"indicator"`
}

func decodeRecord(payload []byte) (*record, error) {
	var r record
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if r.URI == "" {
		return nil, fmt.Errorf("%w: record has no uri", ErrSkipRecord)
	}
	return &r, nil
}

func (r *record) published() bool {
	return r.Publish == nil || *r.Publish
}

func (r *record) title() string {
	switch {
	case r.Title != "":
		return r.Title
	case r.DisplayString != "":
		return r.DisplayString
	default:
		return r.Name
	}
}

func (r *record) identifier() string {
	parts := []string{}
	for _, id := range []string{r.ID0, r.ID1, r.ID2, r.ID3} {
		if id != "" {
			parts = append(parts, id)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "-")
	}
	return r.ComponentID
}

func (r *record) refs() []string {
	refs := []string{}
	for _, a := range r.LinkedAgents {
		refs = append(refs, a.Ref)
	}
	for _, s := range r.Subjects {
		refs = append(refs, s.Ref)
	}
	for _, i := range r.Instances {
		if i.SubContainer != nil && i.SubContainer.TopContainer != nil {
			refs = append(refs, i.SubContainer.TopContainer.Ref)
		}
	}
	if len(refs) == 0 {
		return nil
	}
	return refs
}

func (r *record) entity(bundle string) (sinks.Entity, error) {
	body, err := RenderNotes(r.Notes, "")
	if err != nil {
		return sinks.Entity{}, err
	}
	return sinks.Entity{
		Bundle:     bundle,
		SourceURI:  r.URI,
		Title:      r.title(),
		Identifier: r.identifier(),
		Published:  r.published(),
		Body:       body,
		Refs:       r.refs(),
		Links:      ExternalDocumentLinks(r.ExternalDocuments),
	}, nil
}

type ProcessorFunc func(payload []byte) (sinks.Entity, error)

func (f ProcessorFunc) Process(payload []byte) (sinks.Entity, error) {
	return f(payload)
}

func NewProcessor(processorType config.ProcessorType) (Processor, error) {
	switch processorType {
	case config.ProcessorTypeResource:
		return ProcessorFunc(processResource), nil
	case config.ProcessorTypeArchivalObject:
		return ProcessorFunc(processArchivalObject), nil
	case config.ProcessorTypeAgent:
		return ProcessorFunc(processAgent), nil
	case config.ProcessorTypeSubject:
		return ProcessorFunc(processSubject), nil
	case config.ProcessorTypeTopContainer:
		return ProcessorFunc(processTopContainer), nil
	case config.ProcessorTypeGeneric, "":
		return ProcessorFunc(processGeneric), nil
	}
	return nil, fmt.Errorf("invalid processor type: %s", processorType)
}

func processResource(payload []byte) (sinks.Entity, error) {
	r, err := decodeRecord(payload)
	if err != nil {
		return sinks.Entity{}, err
	}
	return r.entity("resource")
}

func processArchivalObject(payload []byte) (sinks.Entity, error) {
	r, err := decodeRecord(payload)
	if err != nil {
		return sinks.Entity{}, err
	}
	e, err := r.entity("archival_object")
	if err != nil {
		return sinks.Entity{}, err
	}
	if r.Parent != nil {
		e.Parent = r.Parent.Ref
	}
	if r.Resource != nil {
		e.Resource = r.Resource.Ref
	}
	return e, nil
}

func processAgent(payload []byte) (sinks.Entity, error) {
	r, err := decodeRecord(payload)
	if err != nil {
		return sinks.Entity{}, err
	}
	e, err := r.entity("agent")
	if err != nil {
		return sinks.Entity{}, err
	}
	if r.DisplayName != nil && r.DisplayName.SortName != "" {
		e.Title = r.DisplayName.SortName
	}
	return e, nil
}

func processSubject(payload []byte) (sinks.Entity, error) {
	r, err := decodeRecord(payload)
	if err != nil {
		return sinks.Entity{}, err
	}
	e, err := r.entity("subject")
	if err != nil {
		return sinks.Entity{}, err
	}
	if e.Title == "" && len(r.Terms) > 0 {
		terms := make([]string, 0, len(r.Terms))
		for _, t := range r.Terms {
			terms = append(terms, t.Term)
		}
		e.Title = strings.Join(terms, " -- ")
	}
	return e, nil
}

func processTopContainer(payload []byte) (sinks.Entity, error) {
	r, err := decodeRecord(payload)
	if err != nil {
		return sinks.Entity{}, err
	}
	e, err := r.entity("top_container")
	if err != nil {
		return sinks.Entity{}, err
	}
	if r.Title == "" && r.DisplayString == "" {
		e.Title = strings.TrimSpace(r.Type + " " + r.Indicator)
	}
	e.Identifier = r.Indicator
	return e, nil
}

func processGeneric(payload []byte) (sinks.Entity, error) {
	r, err := decodeRecord(payload)
	if err != nil {
		return sinks.Entity{}, err
	}
	return r.entity(r.JSONModelType)
}
