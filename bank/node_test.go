package bank

import (
	"strings"
	"testing"
)

func TestDispatchUnknownCommand(t *testing.T) {
	n, _ := newTestNode(t)

	tests := []struct {
		name string
		line string
	}{
		{"unknown opcode", "XX"},
		{"unknown opcode with args", "ZZ 1 2 3"},
		{"opcode longer than two letters", "BCX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dispatch(t, n, tt.line); got != "ER Unknown command\n" {
				t.Errorf("%q = %q, want %q", tt.line, got, "ER Unknown command\n")
			}
		})
	}
}

func TestDispatchCaseInsensitiveOpcode(t *testing.T) {
	n, _ := newTestNode(t)
	if got := dispatch(t, n, "bc"); got != "BC "+testBankCode+"\n" {
		t.Errorf("lowercase bc = %q", got)
	}
}

func TestDispatchResponsesEndWithNewline(t *testing.T) {
	n, _ := newTestNode(t)
	for _, line := range []string{"BC", "AC", "BA", "BN", "XX", "AB nope"} {
		if got := dispatch(t, n, line); !strings.HasSuffix(got, "\n") {
			t.Errorf("response to %q lacks newline: %q", line, got)
		}
	}
}

// Full client session against one bank: open an account, move money,
// check totals, tear the account down.
func TestAccountLifecycle(t *testing.T) {
	n, _ := newTestNode(t)

	acc := mustCreate(t, n, "")
	steps := []struct {
		line string
		want string
	}{
		{"AD " + acc + " 100", "AD\n"},
		{"AB " + acc, "AB 100\n"},
		{"AW " + acc + " 30.25", "AW\n"},
		{"AB " + acc, "AB 69.75\n"},
		{"BA", "BA 69.75\n"},
		{"BN", "BN 1\n"},
		{"AW " + acc + " 69.75", "AW\n"},
		{"AR " + acc, "AR\n"},
		{"BN", "BN 0\n"},
	}
	for _, step := range steps {
		if got := dispatch(t, n, step.line); got != step.want {
			t.Fatalf("%q = %q, want %q", step.line, got, step.want)
		}
	}
}
