// Package bank implements the domain core of a node: the command
// dispatcher, the operation handlers with their invariants, and the proxy
// forwarder that relays commands to the bank that owns the target account.
package bank

import (
	"context"
	"errors"
	"time"

	"github.com/tekuprogramming/bank-p2p/logging"
	"github.com/tekuprogramming/bank-p2p/metrics"
	"github.com/tekuprogramming/bank-p2p/monitor"
	"github.com/tekuprogramming/bank-p2p/protocol"
	"github.com/tekuprogramming/bank-p2p/store"
)

// handlerFunc executes one opcode. A nil result renders as the bare
// opcode; a DomainError becomes an ER line.
type handlerFunc func(ctx context.Context, args []string, clientIP string) (any, error)

// Node is the domain core of one bank. It is safe for concurrent use by
// any number of server sessions.
type Node struct {
	store    store.Store
	log      *logging.ComponentLogger
	mon      *monitor.Publisher
	metrics  *metrics.Metrics
	bankCode string
	timeout  time.Duration

	handlers map[string]handlerFunc
}

// Options configures a Node.
type Options struct {
	Store    store.Store
	Logger   *logging.ComponentLogger
	Monitor  *monitor.Publisher
	Metrics  *metrics.Metrics
	BankCode string
	// Timeout bounds each outbound proxy hop. Zero means 5 seconds.
	Timeout time.Duration
}

// NewNode creates a bank node core with the full command table wired.
func NewNode(opts Options) *Node {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(false)
	}
	n := &Node{
		store:    opts.Store,
		log:      opts.Logger,
		mon:      opts.Monitor,
		metrics:  opts.Metrics,
		bankCode: opts.BankCode,
		timeout:  opts.Timeout,
	}
	n.handlers = map[string]handlerFunc{
		protocol.CmdBankCode:      n.getBankCode,
		protocol.CmdCreateAccount: n.createAccount,
		protocol.CmdDeposit:       n.deposit,
		protocol.CmdWithdraw:      n.withdraw,
		protocol.CmdBalance:       n.getBalance,
		protocol.CmdRemoveAccount: n.removeAccount,
		protocol.CmdBankAmount:    n.bankAmount,
		protocol.CmdBankClients:   n.bankNumberOfClients,
	}
	return n
}

// opcodes a node understands, whether or not a handler is wired. An
// opcode outside this set is an unknown command; inside it but without a
// handler, a known-but-unimplemented one.
var knownOpcodes = map[string]bool{
	protocol.CmdBankCode:      true,
	protocol.CmdCreateAccount: true,
	protocol.CmdDeposit:       true,
	protocol.CmdWithdraw:      true,
	protocol.CmdBalance:       true,
	protocol.CmdRemoveAccount: true,
	protocol.CmdBankAmount:    true,
	protocol.CmdBankClients:   true,
}

// BankCode returns the node's own bank code.
func (n *Node) BankCode() string { return n.bankCode }

// Store exposes the node's store to the dashboard.
func (n *Node) Store() store.Store { return n.store }

// Dispatch executes one request line and returns the full response line,
// newline included. It never panics a session: every failure maps to an
// ER response.
func (n *Node) Dispatch(ctx context.Context, line, clientIP string) string {
	opcode, args := protocol.Parse(line)

	if !knownOpcodes[opcode] {
		n.mon.Publish(monitor.EventError, "Unknown command: "+opcode)
		return protocol.FormatResponse(opcode, nil, errUnknownCommand)
	}

	handler, ok := n.handlers[opcode]
	if !ok {
		return protocol.FormatResponse(opcode, nil, errCommandNotImplemented)
	}

	start := time.Now()
	result, err := handler(ctx, args, clientIP)
	n.metrics.RecordCommand(opcode, time.Since(start))

	if err != nil {
		var derr *DomainError
		if !errors.As(err, &derr) {
			n.log.Error().
				Str("opcode", opcode).
				Err(err).
				Msg("Command failed")
			err = errCommandIncomplete
		}
		n.mon.Publish(monitor.EventError, err.Error())
		n.metrics.RecordResponse(false)
		return protocol.FormatResponse(opcode, nil, err)
	}

	n.metrics.RecordResponse(true)
	return protocol.FormatResponse(opcode, result, nil)
}

// Statistics merges store statistics with live node state for the
// dashboard.
func (n *Node) Statistics(ctx context.Context) (*store.Statistics, error) {
	return n.store.Statistics(ctx, n.bankCode)
}
