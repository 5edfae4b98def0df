package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tekuprogramming/bank-p2p/logging"
	"github.com/tekuprogramming/bank-p2p/store"
)

func newTestDashboard(t *testing.T) (*Dashboard, *Publisher) {
	t.Helper()
	log, err := logging.New("dashboard-test", "test", "error", "")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	pub := NewPublisher(64)
	d := NewDashboard(DashboardOptions{
		Port:      0,
		BankCode:  "10.1.2.3",
		Store:     store.NewMemory(),
		Publisher: pub,
		Logger:    log,
		Connections: func() []Connection {
			return []Connection{{ID: "10.0.0.5:40001", IP: "10.0.0.5", Port: 40001, Status: "active"}}
		},
		Running: func() bool { return true },
	})
	d.startedAt = time.Now()
	return d, pub
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad JSON body: %v", err)
	}
	return body
}

func TestDashboardHealth(t *testing.T) {
	d, _ := newTestDashboard(t)

	rec := httptest.NewRecorder()
	d.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	body := decodeBody(t, rec)
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["bank_code"] != "10.1.2.3" {
		t.Errorf("bank_code = %v", body["bank_code"])
	}
	if body["running"] != true {
		t.Errorf("running = %v, want true", body["running"])
	}
}

func TestDashboardEventsRing(t *testing.T) {
	d, pub := newTestDashboard(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.consumeEvents(ctx)

	pub.Publish(EventAccount, "Created: 10001/10.1.2.3")
	pub.Publish(EventTransaction, "Deposit: 10001/10.1.2.3 +$50")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(d.RecentEvents()) < 2 {
		time.Sleep(5 * time.Millisecond)
	}

	rec := httptest.NewRecorder()
	d.handleEvents(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	body := decodeBody(t, rec)
	events, ok := body["events"].([]any)
	if !ok || len(events) != 2 {
		t.Fatalf("events = %v, want 2 entries", body["events"])
	}
}

func TestDashboardEventsRingBounded(t *testing.T) {
	log, err := logging.New("dashboard-test", "test", "error", "")
	if err != nil {
		t.Fatal(err)
	}
	pub := NewPublisher(maxRecentEvents + 100)
	d := NewDashboard(DashboardOptions{
		BankCode:  "10.1.2.3",
		Store:     store.NewMemory(),
		Publisher: pub,
		Logger:    log,
	})

	for i := 0; i < maxRecentEvents+50; i++ {
		pub.Publish(EventInfo, "x")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.consumeEvents(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(d.RecentEvents()) < maxRecentEvents {
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(d.RecentEvents()); got != maxRecentEvents {
		t.Errorf("ring size = %d, want %d", got, maxRecentEvents)
	}
}

func TestDashboardConnections(t *testing.T) {
	d, _ := newTestDashboard(t)

	rec := httptest.NewRecorder()
	d.handleConnections(rec, httptest.NewRequest(http.MethodGet, "/connections", nil))

	body := decodeBody(t, rec)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
}

func TestDashboardStats(t *testing.T) {
	d, _ := newTestDashboard(t)

	rec := httptest.NewRecorder()
	d.handleStats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	body := decodeBody(t, rec)
	if body["bank_code"] != "10.1.2.3" {
		t.Errorf("bank_code = %v", body["bank_code"])
	}
	if body["is_running"] != true {
		t.Errorf("is_running = %v", body["is_running"])
	}
	if body["active_connections"] != float64(1) {
		t.Errorf("active_connections = %v", body["active_connections"])
	}
	if _, ok := body["statistics"].(map[string]any); !ok {
		t.Errorf("statistics missing: %v", body)
	}
}
