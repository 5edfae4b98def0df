// Package store provides the persistent state of a bank node: accounts, the
// append-only transaction ledger, and the directory of peer banks. Two
// backends implement the same contract, a PostgreSQL store (pgx) and an
// in-memory store used by tests and for running without a database.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Account numbering issued by a node. Numbers are allocated monotonically
// from MAX(account_number)+1 and never reuse a freed hole.
const (
	FirstAccountNumber = 10001
	LastAccountNumber  = 99999
)

// LedgerKind classifies a ledger entry.
type LedgerKind string

const (
	LedgerInitialDeposit LedgerKind = "INITIAL_DEPOSIT"
	LedgerDeposit        LedgerKind = "DEPOSIT"
	LedgerWithdrawal     LedgerKind = "WITHDRAWAL"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("not found")

// Account is one account row.
type Account struct {
	Number    int64           `json:"account_number"`
	BankCode  string          `json:"bank_code"`
	Balance   decimal.Decimal `json:"balance"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LedgerEntry is one append-only record of a balance change.
type LedgerEntry struct {
	ID          int64           `json:"id"`
	Number      int64           `json:"account_number"`
	BankCode    string          `json:"bank_code"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        LedgerKind      `json:"kind"`
	Description string          `json:"description"`
	Timestamp   time.Time       `json:"timestamp"`
}

// KnownBank is one row of the peer directory, refreshed on every
// successful proxy hop.
type KnownBank struct {
	BankCode  string    `json:"bank_code"`
	IPAddress string    `json:"ip_address"`
	Port      int       `json:"port"`
	LastSeen  time.Time `json:"last_seen"`
	IsActive  bool      `json:"is_active"`
}

// Statistics summarises a bank for the dashboard.
type Statistics struct {
	TotalAccounts     int64           `json:"total_accounts"`
	ActiveAccounts    int64           `json:"active_accounts"`
	TotalBalance      decimal.Decimal `json:"total_balance"`
	AvgBalance        decimal.Decimal `json:"avg_balance"`
	MaxBalance        decimal.Decimal `json:"max_balance"`
	MinBalance        decimal.Decimal `json:"min_balance"`
	TotalTransactions int64           `json:"total_transactions"`
	KnownBanks        int64           `json:"known_banks"`
	ActiveBanks       int64           `json:"active_banks"`
}

// Tx is the set of primitives available inside one transaction. Reads see a
// consistent snapshot; any error returned from the InTx callback rolls the
// whole transaction back.
type Tx interface {
	// NextAccountNumber returns MAX(account_number)+1, or
	// FirstAccountNumber for an empty bank. The caller must insert within
	// the same transaction so the number cannot be reused.
	NextAccountNumber() (int64, error)
	InsertAccount(number int64, bankCode string, balance decimal.Decimal) error
	GetAccount(number int64, bankCode string) (*Account, error)
	// UpdateBalance sets the balance and bumps updated_at.
	UpdateBalance(number int64, bankCode string, balance decimal.Decimal) error
	AppendLedger(number int64, bankCode string, amount decimal.Decimal, kind LedgerKind, description string) error
	DeleteAccount(number int64, bankCode string) error
	SumBalances() (decimal.Decimal, error)
	CountAccounts() (int64, error)
}

// Store is the persistence contract consumed by the command handlers and
// the dashboard. Logical operations run inside InTx; operations serialise
// on the store, which guarantees per-operation atomicity.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	UpsertKnownBank(ctx context.Context, bankCode, ip string, port int) error
	KnownBanks(ctx context.Context) ([]KnownBank, error)
	Accounts(ctx context.Context) ([]Account, error)
	Statistics(ctx context.Context, bankCode string) (*Statistics, error)
	Close()
}
