package routes

import (
	"errors"
	"fmt"
	"regexp"
)

var ErrConfigInvalid = errors.New("route table configuration is invalid")

// Definition pairs a uri pattern with the pipeline responsible for matching uris.
type Definition struct {
	Pattern    string `yaml:"uri_regex"`
	PipelineID string `yaml:"pipeline"`
}

type route struct {
	pattern    *regexp.Regexp
	pipelineID string
}

// Router maps remote resource uris to pipeline ids. Patterns are evaluated in
// registration order and the first match wins.
type Router struct {
	routes []route
}

func New(definitions []Definition) (*Router, error) {
	r := &Router{routes: make([]route, 0, len(definitions))}
	for i, def := range definitions {
		if def.Pattern == "" || def.PipelineID == "" {
			return nil, fmt.Errorf("%w: route %d needs both uri_regex and pipeline", ErrConfigInvalid, i)
		}
		re, err := regexp.Compile(def.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: route %d: %v", ErrConfigInvalid, i, err)
		}
		r.routes = append(r.routes, route{pattern: re, pipelineID: def.PipelineID})
	}
	return r, nil
}

func (r *Router) Route(uri string) (string, bool) {
	for _, rt := range r.routes {
		if rt.pattern.MatchString(uri) {
			return rt.pipelineID, true
		}
	}
	return "", false
}

// PipelineIDs returns the distinct pipeline ids in registration order.
func (r *Router) PipelineIDs() []string {
	seen := map[string]bool{}
	ids := []string{}
	for _, rt := range r.routes {
		if !seen[rt.pipelineID] {
			seen[rt.pipelineID] = true
			ids = append(ids, rt.pipelineID)
		}
	}
	return ids
}
