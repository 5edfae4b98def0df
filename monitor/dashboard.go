package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/tekuprogramming/bank-p2p/logging"
	"github.com/tekuprogramming/bank-p2p/store"
)

// maxRecentEvents bounds the ring buffer served by /events.
const maxRecentEvents = 500

// Dashboard serves the operator HTTP API: recent events, accounts, peer
// banks, live connections, statistics and Prometheus metrics.
type Dashboard struct {
	port     int
	bankCode string
	store    store.Store
	pub      *Publisher
	log      *logging.ComponentLogger

	// connections and running are supplied by the TCP server so the
	// dashboard can report live session state without importing it.
	connections func() []Connection
	running     func() bool
	metrics     http.Handler

	startedAt time.Time
	server    *http.Server

	mu     sync.Mutex
	recent []Event
}

// DashboardOptions configures a Dashboard.
type DashboardOptions struct {
	Port        int
	BankCode    string
	Store       store.Store
	Publisher   *Publisher
	Logger      *logging.ComponentLogger
	Connections func() []Connection
	Running     func() bool
	Metrics     http.Handler
}

// NewDashboard creates a dashboard. Call Start to serve it.
func NewDashboard(opts DashboardOptions) *Dashboard {
	return &Dashboard{
		port:        opts.Port,
		bankCode:    opts.BankCode,
		store:       opts.Store,
		pub:         opts.Publisher,
		log:         opts.Logger,
		connections: opts.Connections,
		running:     opts.Running,
		metrics:     opts.Metrics,
	}
}

// Start launches the event consumer and the HTTP server. It returns
// immediately; serve errors other than a clean shutdown are logged.
func (d *Dashboard) Start(ctx context.Context) {
	d.startedAt = time.Now()

	go d.consumeEvents(ctx)

	r := mux.NewRouter()
	r.HandleFunc("/health", d.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/events", d.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/accounts", d.handleAccounts).Methods(http.MethodGet)
	r.HandleFunc("/banks", d.handleBanks).Methods(http.MethodGet)
	r.HandleFunc("/connections", d.handleConnections).Methods(http.MethodGet)
	r.HandleFunc("/stats", d.handleStats).Methods(http.MethodGet)
	if d.metrics != nil {
		r.Handle("/metrics", d.metrics).Methods(http.MethodGet)
	}

	d.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", d.port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		d.log.Info().Int("port", d.port).Msg("Dashboard started")
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.log.Error().Err(err).Msg("Dashboard server failed")
		}
	}()
}

// Stop shuts the HTTP server down, draining in-flight requests.
func (d *Dashboard) Stop(ctx context.Context) {
	if d.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.log.Warn().Err(err).Msg("Dashboard shutdown incomplete")
	}
}

// consumeEvents drains the publisher stream into the ring buffer until
// the stream closes or ctx ends.
func (d *Dashboard) consumeEvents(ctx context.Context) {
	events := d.pub.Events()
	if events == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.mu.Lock()
			d.recent = append(d.recent, ev)
			if len(d.recent) > maxRecentEvents {
				d.recent = d.recent[len(d.recent)-maxRecentEvents:]
			}
			d.mu.Unlock()
		}
	}
}

// RecentEvents copies the buffered events, newest last.
func (d *Dashboard) RecentEvents() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.recent))
	copy(out, d.recent)
	return out
}

func (d *Dashboard) handleHealth(w http.ResponseWriter, r *http.Request) {
	running := false
	if d.running != nil {
		running = d.running()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"bank_code": d.bankCode,
		"running":   running,
		"uptime":    time.Since(d.startedAt).String(),
		"timestamp": time.Now().UTC(),
	})
}

func (d *Dashboard) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"events":  d.RecentEvents(),
		"dropped": d.pub.Dropped(),
	})
}

func (d *Dashboard) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := d.store.Accounts(r.Context())
	if err != nil {
		d.log.Error().Err(err).Msg("Dashboard accounts query failed")
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

func (d *Dashboard) handleBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := d.store.KnownBanks(r.Context())
	if err != nil {
		d.log.Error().Err(err).Msg("Dashboard banks query failed")
		writeError(w, http.StatusInternalServerError, "failed to list banks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"banks": banks,
		"count": len(banks),
	})
}

func (d *Dashboard) handleConnections(w http.ResponseWriter, r *http.Request) {
	conns := []Connection{}
	if d.connections != nil {
		conns = d.connections()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connections": conns,
		"count":       len(conns),
	})
}

func (d *Dashboard) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := d.store.Statistics(r.Context(), d.bankCode)
	if err != nil {
		d.log.Error().Err(err).Msg("Dashboard stats query failed")
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	running := false
	if d.running != nil {
		running = d.running()
	}
	active := 0
	if d.connections != nil {
		active = len(d.connections())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bank_code":          d.bankCode,
		"is_running":         running,
		"active_connections": active,
		"statistics":         stats,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
