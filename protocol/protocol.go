// Package protocol implements the line-oriented wire syntax spoken between
// bank nodes and their clients. Requests and responses are single ASCII
// lines terminated by '\n'. This package is the only authority on that
// syntax; it performs no I/O.
package protocol

import (
	"fmt"
	"strings"
)

// Opcodes understood by a bank node.
const (
	CmdBankCode      = "BC"
	CmdCreateAccount = "AC"
	CmdDeposit       = "AD"
	CmdWithdraw      = "AW"
	CmdBalance       = "AB"
	CmdRemoveAccount = "AR"
	CmdBankAmount    = "BA"
	CmdBankClients   = "BN"
)

// MaxLineBytes bounds a single request line, matching the 1024-byte read
// buffer used by every node on the network.
const MaxLineBytes = 1024

// Parse splits one request line into an upper-cased opcode and its
// arguments. Surrounding whitespace is ignored; an empty line yields an
// empty opcode and no arguments.
func Parse(line string) (string, []string) {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return "", nil
	}
	return strings.ToUpper(parts[0]), parts[1:]
}

// FormatResponse renders one response line. An error produces
// "ER <message>\n"; a nil result produces the bare opcode; anything else is
// appended as the textual body after the opcode.
func FormatResponse(opcode string, result any, err error) string {
	if err != nil {
		return "ER " + err.Error() + "\n"
	}
	if result == nil {
		return opcode + "\n"
	}
	return opcode + " " + textual(result) + "\n"
}

func textual(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
