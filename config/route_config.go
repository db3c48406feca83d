package config

import (
	"fmt"

	"github.com/fjlanasa/aspace-sync/routes"
	"gopkg.in/yaml.v3"
)

// RouteList is the ordered `routes:` section. Order is significant, so it
// must be a YAML sequence rather than a mapping.
type RouteList []routes.Definition

func (l *RouteList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("%w: routes must be a list of uri_regex/pipeline pairs (line %d)", routes.ErrConfigInvalid, node.Line)
	}
	defs := make([]routes.Definition, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.MappingNode {
			return fmt.Errorf("%w: route at line %d is not a uri_regex/pipeline pair", routes.ErrConfigInvalid, item.Line)
		}
		var def routes.Definition
		if err := item.Decode(&def); err != nil {
			return fmt.Errorf("%w: line %d: %v", routes.ErrConfigInvalid, item.Line, err)
		}
		defs = append(defs, def)
	}
	*l = defs
	return nil
}
