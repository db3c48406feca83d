package graphs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjlanasa/aspace-sync/config"
	"github.com/fjlanasa/aspace-sync/event_server"
	"github.com/fjlanasa/aspace-sync/ledger"
	"github.com/fjlanasa/aspace-sync/metrics"
	"github.com/fjlanasa/aspace-sync/pipelines"
	"github.com/fjlanasa/aspace-sync/routes"
	"github.com/fjlanasa/aspace-sync/sinks"
	"github.com/fjlanasa/aspace-sync/sources"
	"github.com/fjlanasa/aspace-sync/statestore"
	"github.com/fjlanasa/aspace-sync/syncer"
	"github.com/reugn/go-streams/extension"
	"github.com/reugn/go-streams/flow"
	"go.uber.org/multierr"
)

const drainTimeout = 5 * time.Second

// Graph owns every component of a configured sync: the state store, the
// entity sinks, the pipelines and the progress event fan-out.
type Graph struct {
	syncer     *syncer.Syncer
	store      statestore.StateStore
	sinks      map[config.ID]sinks.Sink
	metrics    *metrics.Metrics
	server     *event_server.EventServer
	outlet     chan any
	eventSinks []*sinks.EventSink
}

type graphOptions struct {
	feed        syncer.Feed
	store       statestore.StateStore
	eventServer bool
	eventLevel  slog.Level
}

type GraphOption func(*graphOptions)

// WithFeed replaces the ArchivesSpace client built from the remote config.
func WithFeed(feed syncer.Feed) GraphOption {
	return func(o *graphOptions) {
		o.feed = feed
	}
}

func WithStateStore(store statestore.StateStore) GraphOption {
	return func(o *graphOptions) {
		o.store = store
	}
}

// WithEventServer controls whether a configured event server is started.
func WithEventServer(enabled bool) GraphOption {
	return func(o *graphOptions) {
		o.eventServer = enabled
	}
}

// WithEventLogLevel sets the level progress events are logged at.
func WithEventLogLevel(lvl slog.Level) GraphOption {
	return func(o *graphOptions) {
		o.eventLevel = lvl
	}
}

func NewGraph(ctx context.Context, cfg *config.Config, opts ...GraphOption) (*Graph, error) {
	o := graphOptions{eventServer: true, eventLevel: slog.LevelDebug}
	for _, opt := range opts {
		opt(&o)
	}

	graph := &Graph{sinks: make(map[config.ID]sinks.Sink)}

	store := o.store
	if store == nil {
		var err error
		if store, err = statestore.NewStateStore(ctx, cfg.StateStore); err != nil {
			return nil, fmt.Errorf("state store: %w", err)
		}
	}
	graph.store = store

	pipelineList := make([]*pipelines.Pipeline, 0, len(cfg.Pipelines))
	for _, pipelineConfig := range cfg.Pipelines {
		sink, ok := graph.sinks[pipelineConfig.Sink.ID]
		if !ok {
			var err error
			if sink, err = sinks.NewSink(ctx, pipelineConfig.Sink); err != nil {
				return nil, multierr.Append(fmt.Errorf("sink %q: %w", pipelineConfig.Sink.ID, err), graph.Close())
			}
			graph.sinks[pipelineConfig.Sink.ID] = sink
		}
		p, err := pipelines.NewPipeline(pipelineConfig, sink)
		if err != nil {
			return nil, multierr.Append(err, graph.Close())
		}
		pipelineList = append(pipelineList, p)
	}

	router, err := routes.New(cfg.Routes)
	if err != nil {
		return nil, multierr.Append(err, graph.Close())
	}

	feed := o.feed
	if feed == nil {
		feed = sources.NewArchivesSpaceSource(cfg.Remote)
	}

	graph.metrics = metrics.New()
	graph.eventSinks = []*sinks.EventSink{
		sinks.NewMetricsSink(ctx, graph.metrics),
		sinks.NewEventLogSink(ctx, o.eventLevel),
	}
	if cfg.Ledger != nil && cfg.Ledger.Dir != "" {
		graph.eventSinks = append(graph.eventSinks, sinks.NewLedgerSink(ctx, ledger.New(cfg.Ledger.Dir)))
	}
	if cfg.EventServer != nil && o.eventServer {
		graph.server = event_server.NewEventServer(ctx, *cfg.EventServer, graph.metrics.Handler())
		graph.eventSinks = append(graph.eventSinks, sinks.NewHttpSink(ctx, graph.server))
	}
	graph.outlet = make(chan any)
	flows := flow.FanOut(extension.NewChanSource(graph.outlet).Via(flow.NewPassThrough()), len(graph.eventSinks))
	for i, f := range flows {
		f.To(graph.eventSinks[i])
	}

	graph.syncer = syncer.New(feed, router, pipelines.NewRunner(pipelineList, store), store,
		syncer.WithWorkers(cfg.Run.Workers),
		syncer.WithOutlet(graph.outlet),
		syncer.WithComparisonOffset(cfg.Remote.ComparisonOffset),
		syncer.WithUpdatePageSize(cfg.Remote.UpdatePageSize),
		syncer.WithLockTTL(cfg.Run.LockTTL),
	)
	return graph, nil
}

func (g *Graph) Syncer() *syncer.Syncer {
	return g.syncer
}

func (g *Graph) Sink(id config.ID) (sinks.Sink, bool) {
	sink, ok := g.sinks[id]
	return sink, ok
}

func (g *Graph) Metrics() *metrics.Metrics {
	return g.metrics
}

// Close drains the event sinks, then closes the entity sinks and the state
// store. It must not be called while a run is in progress.
func (g *Graph) Close() error {
	if g.outlet != nil {
		close(g.outlet)
		g.outlet = nil
		timeout := time.After(drainTimeout)
		for _, s := range g.eventSinks {
			select {
			case <-s.Done():
			case <-timeout:
				slog.Warn("event sink did not drain before shutdown")
			}
		}
	}
	if g.server != nil {
		g.server.Close()
	}
	var err error
	for id, sink := range g.sinks {
		if cerr := sink.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close sink %q: %w", id, cerr))
		}
	}
	g.sinks = map[config.ID]sinks.Sink{}
	if g.store != nil {
		err = multierr.Append(err, g.store.Close())
		g.store = nil
	}
	return err
}
