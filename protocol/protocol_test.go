package protocol

import (
	"errors"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantOp   string
		wantArgs []string
	}{
		{"bare opcode", "BC", "BC", nil},
		{"opcode with newline", "BC\n", "BC", nil},
		{"lowercase opcode", "bc", "BC", nil},
		{"single argument", "AB 10001/10.1.2.3", "AB", []string{"10001/10.1.2.3"}},
		{"two arguments", "AD 10001/10.1.2.3 50.5", "AD", []string{"10001/10.1.2.3", "50.5"}},
		{"extra whitespace", "  AD   10001/10.1.2.3   50.5  ", "AD", []string{"10001/10.1.2.3", "50.5"}},
		{"empty line", "", "", nil},
		{"whitespace only", "   \t  ", "", nil},
		{"unknown opcode kept", "XX foo", "XX", []string{"foo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, args := Parse(tt.line)
			if op != tt.wantOp {
				t.Errorf("Parse(%q) opcode = %q, want %q", tt.line, op, tt.wantOp)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("Parse(%q) args = %v, want %v", tt.line, args, tt.wantArgs)
			}
			if len(args) > 0 && !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("Parse(%q) args = %v, want %v", tt.line, args, tt.wantArgs)
			}
		})
	}
}

func TestFormatResponse(t *testing.T) {
	tests := []struct {
		name   string
		opcode string
		result any
		err    error
		want   string
	}{
		{"nil result renders bare opcode", "AD", nil, nil, "AD\n"},
		{"string result", "AC", "10001/10.1.2.3", nil, "AC 10001/10.1.2.3\n"},
		{"int64 result", "BN", int64(3), nil, "BN 3\n"},
		{"error renders ER line", "AB", nil, errors.New("Account not found or inactive"), "ER Account not found or inactive\n"},
		{"error wins over result", "AB", "100", errors.New("boom"), "ER boom\n"},
		{"pass-through body may repeat the opcode", "AD", "AD", nil, "AD AD\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatResponse(tt.opcode, tt.result, tt.err)
			if got != tt.want {
				t.Errorf("FormatResponse(%q, %v, %v) = %q, want %q", tt.opcode, tt.result, tt.err, got, tt.want)
			}
		})
	}
}
