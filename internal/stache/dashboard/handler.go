package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/notify"
)

// RecordChangeData contains record change information
type RecordChangeData struct {
	Kind   string `json:"kind"`
	Key    string `json:"key"`
	Action string `json:"action"` // created, updated, synced, deleted
}

// RebuildData contains rebuild information
type RebuildData struct {
	Kind string `json:"kind"`
}

// StatsData contains record statistics
type StatsData struct {
	// Records is the row count per kind, when a Counter is available.
	Records map[string]int `json:"records"`
	// Changes counts events per action since the handler started.
	Changes map[string]int `json:"changes"`
}

// Counter reports the number of rows of a kind.
type Counter interface {
	Count(ctx context.Context, kind string) (int, error)
}

// Handler turns engine events into dashboard messages.
// It implements notify.Sink.
type Handler struct {
	server  *Server
	counter Counter
	logger  *slog.Logger

	mu    sync.Mutex
	stats StatsData
}

var _ notify.Sink = (*Handler)(nil)

// NewHandler creates a handler connected to a dashboard server. counter may
// be nil, in which case record counts are not reported.
func NewHandler(server *Server, counter Counter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server:  server,
		counter: counter,
		logger:  logger.With("component", "dashboard"),
		stats: StatsData{
			Records: make(map[string]int),
			Changes: make(map[string]int),
		},
	}
	server.welcome = h.statsMessage
	return h
}

// Publish broadcasts e and the updated statistics.
func (h *Handler) Publish(ctx context.Context, e notify.Event) {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}

	var msg Message
	var err error
	if e.Action == notify.Rebuilt {
		msg, err = newMessage(MessageTypeRebuild, at, RebuildData{Kind: e.Kind})
	} else {
		msg, err = newMessage(MessageTypeRecordChange, at, RecordChangeData{
			Kind:   e.Kind,
			Key:    e.Key,
			Action: string(e.Action),
		})
	}
	if err != nil {
		h.logger.Error("failed to marshal event", "error", err)
		return
	}
	h.server.Broadcast(msg)

	h.mu.Lock()
	h.stats.Changes[string(e.Action)]++
	h.mu.Unlock()

	if h.counter != nil && e.Kind != "" {
		n, err := h.counter.Count(ctx, e.Kind)
		if err != nil {
			h.logger.Warn("failed to count records", "kind", e.Kind, "error", err)
		} else {
			h.mu.Lock()
			h.stats.Records[e.Kind] = n
			h.mu.Unlock()
		}
	}

	h.server.Broadcast(h.statsMessage())
}

// GetStats returns the current statistics
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return StatsData{
		Records: maps.Clone(h.stats.Records),
		Changes: maps.Clone(h.stats.Changes),
	}
}

func (h *Handler) statsMessage() Message {
	msg, err := newMessage(MessageTypeStats, time.Now(), h.GetStats())
	if err != nil {
		h.logger.Error("failed to marshal stats", "error", err)
		return Message{Type: MessageTypeStats, Timestamp: time.Now()}
	}
	return msg
}

func newMessage(typ MessageType, at time.Time, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Timestamp: at, Data: raw}, nil
}
