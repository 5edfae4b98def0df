package server

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/tekuprogramming/bank-p2p/bank"
	"github.com/tekuprogramming/bank-p2p/logging"
	"github.com/tekuprogramming/bank-p2p/monitor"
	"github.com/tekuprogramming/bank-p2p/store"
)

const testBankCode = "10.1.2.3"

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	log, err := logging.New("server-test", "test", "error", "")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	node := bank.NewNode(bank.Options{
		Store:    store.NewMemory(),
		Logger:   log,
		BankCode: testBankCode,
	})
	srv := New(Options{
		Host:       "127.0.0.1",
		Port:       0,
		Timeout:    2 * time.Second,
		Dispatcher: node,
		Logger:     log,
		Monitor:    monitor.NewPublisher(64),
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv, srv.Addr().String()
}

func sendLine(t *testing.T, conn net.Conn, line string) string {
	t.Helper()
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
	buf := make([]byte, 1024)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read after %q: %v", line, err)
	}
	return string(buf[:n])
}

func TestServerSession(t *testing.T) {
	_, addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if got := sendLine(t, conn, "BC"); got != "BC "+testBankCode+"\n" {
		t.Fatalf("BC = %q", got)
	}

	created := sendLine(t, conn, "AC 500")
	if !strings.HasPrefix(created, "AC ") {
		t.Fatalf("AC = %q", created)
	}
	acc := strings.TrimSpace(strings.TrimPrefix(created, "AC "))

	steps := []struct {
		line string
		want string
	}{
		{"AD " + acc + " 100", "AD\n"},
		{"AB " + acc, "AB 600\n"},
		{"AW " + acc + " 600", "AW\n"},
		{"BA", "BA 0\n"},
		{"XX", "ER Unknown command\n"},
	}
	for _, step := range steps {
		if got := sendLine(t, conn, step.line); got != step.want {
			t.Errorf("%q = %q, want %q", step.line, got, step.want)
		}
	}
}

func TestServerSkipsBlankLines(t *testing.T) {
	_, addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// A blank line produces no response; the next command still works.
	if _, err := conn.Write([]byte("\n")); err != nil {
		t.Fatal(err)
	}
	if got := sendLine(t, conn, "BN"); got != "BN 0\n" {
		t.Errorf("BN after blank line = %q", got)
	}
}

func TestServerConcurrentClients(t *testing.T) {
	srv, addr := startTestServer(t)

	conns := make([]net.Conn, 3)
	for i := range conns {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		defer conn.Close()
		conns[i] = conn
	}

	for i, conn := range conns {
		resp := sendLine(t, conn, "AC")
		if !strings.HasPrefix(resp, "AC ") {
			t.Errorf("client %d AC = %q", i, resp)
		}
	}
	if got := sendLine(t, conns[0], "BN"); got != "BN 3\n" {
		t.Errorf("BN = %q, want %q", got, "BN 3\n")
	}

	// The server must see all three sessions.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(srv.ActiveConnections()) == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := len(srv.ActiveConnections()); n != 3 {
		t.Errorf("active connections = %d, want 3", n)
	}
}

func TestServerStopClosesSessions(t *testing.T) {
	srv, addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if got := sendLine(t, conn, "BC"); !strings.HasPrefix(got, "BC") {
		t.Fatalf("BC = %q", got)
	}

	srv.Stop()
	if srv.Running() {
		t.Error("server still reports running after Stop")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	if _, err := conn.Read(buf); err == nil {
		t.Error("session survived server stop")
	}

	if _, err := net.DialTimeout("tcp", addr, 500*time.Millisecond); err == nil {
		t.Error("listener still accepting after Stop")
	}
}

func TestServerIdleTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the session timeout")
	}

	log, err := logging.New("server-test", "test", "error", "")
	if err != nil {
		t.Fatal(err)
	}
	node := bank.NewNode(bank.Options{
		Store:    store.NewMemory(),
		Logger:   log,
		BankCode: testBankCode,
	})
	srv := New(Options{
		Host:       "127.0.0.1",
		Port:       0,
		Timeout:    200 * time.Millisecond,
		Dispatcher: node,
		Logger:     log,
		Monitor:    monitor.NewPublisher(64),
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Stay silent past the timeout; the server must hang up.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	if _, err := conn.Read(buf); err == nil {
		t.Error("idle session was not closed")
	}
}
