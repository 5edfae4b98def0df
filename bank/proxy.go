package bank

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/tekuprogramming/bank-p2p/monitor"
	"github.com/tekuprogramming/bank-p2p/protocol"
)

// DefaultPeerPort is assumed when a target bank code carries no explicit
// port.
const DefaultPeerPort = 65525

// forward relays one command to the bank that owns the target account and
// returns the peer's response line verbatim. The relayed line is exactly
// what the client would have sent to the peer directly.
func (n *Node) forward(ctx context.Context, opcode, accountInfo, amount, target string) (any, error) {
	ip := target
	port := DefaultPeerPort
	if strings.Contains(target, ":") {
		parts := strings.SplitN(target, ":", 2)
		ip = parts[0]
		p, err := strconv.Atoi(parts[1])
		if err != nil {
			n.metrics.RecordProxy(false)
			return nil, domainError("Cannot connect to bank " + target)
		}
		port = p
	}

	line := opcode + " " + accountInfo
	if amount != "" {
		line += " " + amount
	}
	line += "\n"

	resp, err := n.relay(ctx, net.JoinHostPort(ip, strconv.Itoa(port)), line)
	if err != nil {
		n.metrics.RecordProxy(false)
		n.log.Error().
			Str("target", target).
			Err(err).
			Msg("Proxy failed")
		return nil, domainError("Cannot connect to bank " + target)
	}

	if err := n.store.UpsertKnownBank(ctx, target, ip, port); err != nil {
		n.log.Warn().
			Str("target", target).
			Err(err).
			Msg("Failed to record known bank")
	}

	n.metrics.RecordProxy(true)
	n.log.Info().
		Str("opcode", opcode).
		Str("target", target).
		Str("response", resp).
		Msg("Proxied command")
	n.mon.Publish(monitor.EventProxy, opcode+" to "+target)

	return resp, nil
}

// relay runs one request/response exchange over a fresh TCP session.
func (n *Node) relay(ctx context.Context, addr, line string) (string, error) {
	dialer := net.Dialer{Timeout: n.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(n.timeout)); err != nil {
		return "", err
	}
	if _, err := conn.Write([]byte(line)); err != nil {
		return "", err
	}

	buf := make([]byte, protocol.MaxLineBytes)
	read, err := conn.Read(buf)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(buf[:read])), nil
}
