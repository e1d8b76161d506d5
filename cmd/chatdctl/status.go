package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vango-dev/chatd/pkg/chatd"
	"github.com/vango-dev/chatd/pkg/middleware"
)

// shardStatus is the /status view of a connection.
type shardStatus struct {
	Shard int      `json:"shard"`
	URL   string   `json:"url"`
	State string   `json:"state"`
	Queue int      `json:"queue"`
	Chats []string `json:"chats"`
}

// chatStatus is the /status/chats/{chatID} view of a buffer.
type chatStatus struct {
	Chat         string  `json:"chat"`
	Shard        int     `json:"shard"`
	State        string  `json:"state"`
	Low          *int    `json:"low,omitempty"`
	High         *int    `json:"high,omitempty"`
	Messages     int     `json:"messages"`
	Pending      int     `json:"pending"`
	LastSeen     *int    `json:"lastSeen,omitempty"`
	LastReceived *int    `json:"lastReceived,omitempty"`
	Retention    float64 `json:"retentionSeconds,omitempty"`
}

// newStatusRouter serves the client state and its metrics.
func newStatusRouter(client *chatd.Client, reg *prometheus.Registry, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Prometheus(middleware.WithRegistry(reg)))
	r.Use(middleware.OpenTelemetry())
	r.Use(middleware.Logger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		var shards []shardStatus
		err := client.Loop().Call(r.Context(), func() {
			for _, conn := range client.Connections() {
				st := shardStatus{
					Shard: conn.ShardNo(),
					URL:   conn.URL().String(),
					State: conn.State().String(),
					Queue: conn.QueueLen(),
					Chats: []string{},
				}
				for _, id := range conn.ChatIDs() {
					st.Chats = append(st.Chats, id.String())
				}
				shards = append(shards, st)
			}
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if shards == nil {
			shards = []shardStatus{}
		}
		writeJSON(w, map[string]any{"user": client.UserID().String(), "shards": shards})
	})
	r.Get("/status/chats/{chatID}", func(w http.ResponseWriter, r *http.Request) {
		chatID, err := parseAnyID(chi.URLParam(r, "chatID"))
		if err != nil {
			http.Error(w, "invalid chat id", http.StatusBadRequest)
			return
		}
		var (
			st    chatStatus
			found bool
		)
		err = client.Loop().Call(r.Context(), func() {
			m, ok := client.Messages(chatID)
			if !ok {
				return
			}
			found = true
			st = chatStatus{
				Chat:      chatID.String(),
				Messages:  m.Len(),
				Pending:   m.PendingCount(),
				LastSeen:  index(m.LastSeenIdx()),
				Retention: m.Retention().Seconds(),
			}
			st.LastReceived = index(m.LastReceivedIdx())
			if m.Len() > 0 {
				st.Low, st.High = index(m.LowNum()), index(m.HighNum())
			}
			if conn, ok := client.ConnectionForChat(chatID); ok {
				st.Shard = conn.ShardNo()
				st.State = conn.State().String()
			}
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if !found {
			http.Error(w, "unknown chat", http.StatusNotFound)
			return
		}
		writeJSON(w, st)
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return r
}

// index returns nil for chatd.NoIndex.
func index(idx int) *int {
	if idx == chatd.NoIndex {
		return nil
	}
	return &idx
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
