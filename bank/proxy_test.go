package bank

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

// fakePeer runs a single-shot bank listener that records the line it
// receives and answers with a fixed response.
func fakePeer(t *testing.T, response string) (addr string, received chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fake peer listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	received = make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1024)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		received <- string(buf[:n])
		conn.Write([]byte(response))
	}()
	return ln.Addr().String(), received
}

func TestProxyForwardsVerbatim(t *testing.T) {
	addr, received := fakePeer(t, "AD\n")
	n, mem := newTestNode(t)

	line := "AD 10001/" + addr + " 50.5"
	if got := dispatch(t, n, line); got != "AD\n" {
		t.Errorf("proxied deposit = %q, want %q", got, "AD\n")
	}

	select {
	case fwd := <-received:
		want := "AD 10001/" + addr + " 50.5\n"
		if fwd != want {
			t.Errorf("forwarded line = %q, want %q", fwd, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer never received the forwarded command")
	}

	banks, err := mem.KnownBanks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(banks) != 1 || banks[0].BankCode != addr {
		t.Errorf("known banks after proxy = %+v, want one entry for %s", banks, addr)
	}
}

func TestProxyForwardsDepositWithoutAmount(t *testing.T) {
	// Routing precedes amount validation: the owning bank judges the rest
	// of the command, including a missing amount.
	addr, received := fakePeer(t, "ER Command incomplete\n")
	n, _ := newTestNode(t)

	if got := dispatch(t, n, "AD 10001/"+addr); got != "AD ER Command incomplete\n" {
		t.Errorf("proxied amountless deposit = %q", got)
	}
	select {
	case fwd := <-received:
		if want := "AD 10001/" + addr + "\n"; fwd != want {
			t.Errorf("forwarded line = %q, want %q", fwd, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer never received the forwarded command")
	}
}

func TestProxyPassesPeerResponseThrough(t *testing.T) {
	// A peer body is relayed as the handler result, so the local node
	// renders its own opcode in front of the peer's full line.
	addr, _ := fakePeer(t, "AB 250.5\n")
	n, _ := newTestNode(t)

	if got := dispatch(t, n, "AB 10001/"+addr); got != "AB AB 250.5\n" {
		t.Errorf("proxied balance = %q, want %q", got, "AB AB 250.5\n")
	}
}

func TestProxyPassesPeerErrorThrough(t *testing.T) {
	addr, _ := fakePeer(t, "ER Account not found\n")
	n, _ := newTestNode(t)

	if got := dispatch(t, n, "AW 10001/"+addr+" 5"); got != "AW ER Account not found\n" {
		t.Errorf("proxied error = %q, want %q", got, "AW ER Account not found\n")
	}
}

func TestProxyRemoveAccount(t *testing.T) {
	addr, received := fakePeer(t, "AR\n")
	n, _ := newTestNode(t)

	if got := dispatch(t, n, "AR 10001/"+addr); got != "AR\n" {
		t.Errorf("proxied removal = %q, want %q", got, "AR\n")
	}
	select {
	case fwd := <-received:
		if want := "AR 10001/" + addr + "\n"; fwd != want {
			t.Errorf("forwarded line = %q, want %q", fwd, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer never received the forwarded command")
	}
}

func TestProxyConnectFailure(t *testing.T) {
	// Grab a port nobody listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	n, mem := newTestNode(t)
	want := "ER Cannot connect to bank " + addr + "\n"
	if got := dispatch(t, n, "AD 10001/"+addr+" 10"); got != want {
		t.Errorf("unreachable peer = %q, want %q", got, want)
	}

	banks, err := mem.KnownBanks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(banks) != 0 {
		t.Errorf("failed proxy must not record the peer, got %+v", banks)
	}
}

func TestProxyBadPort(t *testing.T) {
	n, _ := newTestNode(t)
	got := dispatch(t, n, "AB 10001/10.0.0.9:notaport")
	if !strings.HasPrefix(got, "ER Cannot connect to bank ") {
		t.Errorf("bad peer port = %q, want a connect error", got)
	}
}
