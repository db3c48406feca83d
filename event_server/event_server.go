package event_server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/fjlanasa/aspace-sync/api/v1/events"
	"github.com/fjlanasa/aspace-sync/config"
	"github.com/google/uuid"
)

const subscriberBuffer = 16

type SubscriberId string

func NewSubscriberId() SubscriberId {
	return SubscriberId(uuid.New().String())
}

type Subscriber struct {
	ID           SubscriberId
	Channel      chan any
	Subscription map[string]string
}

func NewSubscriber(id SubscriberId, subscription map[string]string) *Subscriber {
	return &Subscriber{
		ID:           id,
		Channel:      make(chan any, subscriberBuffer),
		Subscription: subscription,
	}
}

// Matches reports whether every filter in the subscription equals the
// corresponding event attribute.
func (s *Subscriber) Matches(eventMap map[string]any) bool {
	for k, v := range s.Subscription {
		attr, ok := eventMap[k]
		if !ok || fmt.Sprint(attr) != v {
			return false
		}
	}
	return true
}

// EventServer streams progress events to SSE subscribers and optionally
// serves metrics next to them.
type EventServer struct {
	clients    map[SubscriberId]*Subscriber
	clientsMux sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
}

func newEventServer(ctx context.Context) *EventServer {
	server := &EventServer{
		clients: make(map[SubscriberId]*Subscriber),
	}
	server.ctx, server.cancel = context.WithCancel(ctx)
	return server
}

// NewEventServer starts listening on cfg.Port. The server shuts down when
// ctx is cancelled or Close is called.
func NewEventServer(ctx context.Context, cfg config.EventServerConfig, metrics http.Handler) *EventServer {
	server := newEventServer(ctx)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: server.Handler(cfg, metrics),
	}

	go func() {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		<-server.ctx.Done()
		if err := httpServer.Shutdown(context.Background()); err != nil {
			slog.Error("Error shutting down server", "error", err)
		}
	}()

	return server
}

// Handler routes cfg.Path to the event stream and cfg.MetricsPath to
// metrics when both are set.
func (es *EventServer) Handler(cfg config.EventServerConfig, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	path := cfg.Path
	if path == "" {
		path = "/events"
	}
	mux.HandleFunc(path, es.handleSSE)
	if metrics != nil && cfg.MetricsPath != "" {
		mux.Handle(cfg.MetricsPath, metrics)
	}
	return mux
}

func (es *EventServer) Close() {
	es.cancel()
}

func (es *EventServer) Subscribe(subscription map[string]string) *Subscriber {
	es.clientsMux.Lock()
	defer es.clientsMux.Unlock()
	client := NewSubscriber(NewSubscriberId(), subscription)
	es.clients[client.ID] = client
	return client
}

func (es *EventServer) Unsubscribe(client *Subscriber) {
	es.clientsMux.Lock()
	defer es.clientsMux.Unlock()
	delete(es.clients, client.ID)
	close(client.Channel)
}

// Broadcast delivers event to every matching subscriber. A subscriber
// whose buffer is full misses the event.
func (es *EventServer) Broadcast(event events.Event) {
	es.clientsMux.RLock()
	defer es.clientsMux.RUnlock()
	eventMap := events.GetEventMap(event)

	for _, client := range es.clients {
		if !client.Matches(eventMap) {
			continue
		}
		select {
		case client.Channel <- eventMap:
		default:
			slog.Warn("event server: subscriber is behind, dropping event", "subscriber", client.ID, "event_type", eventMap["event_type"])
		}
	}
}

func (es *EventServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	subscription := map[string]string{}
	for k, v := range r.URL.Query() {
		subscription[k] = v[0]
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	client := es.Subscribe(subscription)
	defer es.Unsubscribe(client)

	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case <-es.ctx.Done():
			return
		case event := <-client.Channel:
			eventMap, ok := event.(map[string]any)
			if !ok {
				continue
			}
			data, err := json.Marshal(eventMap)
			if err != nil {
				slog.Warn("event server: could not encode event", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventMap["event_type"], data)
			flusher.Flush()
		}
	}
}
