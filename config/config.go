package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/fjlanasa/aspace-sync/routes"
	"gopkg.in/yaml.v3"
)

type ID string

type ConfigYaml struct {
	Remote      RemoteConfig              `yaml:"remote"`
	StateStore  StateStoreConfig          `yaml:"state_store"`
	Sinks       map[ID]SinkConfig         `yaml:"sinks"`
	Routes      RouteList                 `yaml:"routes"`
	Pipelines   map[ID]PipelineConfigYaml `yaml:"pipelines"`
	Run         RunConfig                 `yaml:"run"`
	EventServer *EventServerConfig        `yaml:"event_server"`
	Ledger      *LedgerConfig             `yaml:"ledger"`
}

type Config struct {
	Remote      RemoteConfig
	StateStore  StateStoreConfig
	Routes      []routes.Definition
	Pipelines   []PipelineConfig
	Run         RunConfig
	EventServer *EventServerConfig
	Ledger      *LedgerConfig
}

func ReadConfig(path string) (*Config, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(yamlFile)
}

func ParseConfig(data []byte) (*Config, error) {
	var config ConfigYaml
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return config.Materialize()
}

// Materialize resolves pipeline references and applies defaults and
// environment overrides.
func (c ConfigYaml) Materialize() (*Config, error) {
	remote := c.Remote.withEnv().withDefaults()
	if remote.BaseURL == "" {
		return nil, fmt.Errorf("remote.base_url is required")
	}

	ids := make([]string, 0, len(c.Pipelines))
	for id := range c.Pipelines {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	pipelines := make([]PipelineConfig, 0, len(ids))
	for _, id := range ids {
		p, err := c.Pipelines[ID(id)].materialize(ID(id), c.Sinks, c.Pipelines)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, p)
	}

	for i, def := range c.Routes {
		if _, ok := c.Pipelines[ID(def.PipelineID)]; !ok {
			return nil, fmt.Errorf("%w: route %d references unknown pipeline %q", routes.ErrConfigInvalid, i, def.PipelineID)
		}
	}
	if err := c.Run.validate(); err != nil {
		return nil, err
	}

	// Compile once here so bad patterns fail at load time.
	if _, err := routes.New(c.Routes); err != nil {
		return nil, err
	}

	return &Config{
		Remote:      remote,
		StateStore:  c.StateStore.withDefaults(),
		Routes:      c.Routes,
		Pipelines:   pipelines,
		Run:         c.Run.withDefaults(),
		EventServer: c.EventServer,
		Ledger:      c.Ledger,
	}, nil
}
