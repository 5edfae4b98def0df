package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Memory is a Store kept entirely in process memory. It backs the test
// suite and the `storage.backend: memory` mode for running a node without
// PostgreSQL. Transactions stage their writes on a copy of the state and
// swap it in on commit, so a failed operation leaves nothing behind.
type Memory struct {
	mu       sync.Mutex
	accounts map[int64]*Account
	ledger   []LedgerEntry
	banks    map[string]*KnownBank
	nextID   int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[int64]*Account),
		banks:    make(map[string]*KnownBank),
	}
}

func (s *Memory) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		accounts: make(map[int64]*Account, len(s.accounts)),
		ledger:   append([]LedgerEntry(nil), s.ledger...),
		nextID:   s.nextID,
	}
	for n, acc := range s.accounts {
		cp := *acc
		tx.accounts[n] = &cp
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.accounts = tx.accounts
	s.ledger = tx.ledger
	s.nextID = tx.nextID
	return nil
}

type memTx struct {
	accounts map[int64]*Account
	ledger   []LedgerEntry
	nextID   int64
}

func (t *memTx) NextAccountNumber() (int64, error) {
	next := int64(FirstAccountNumber)
	for n := range t.accounts {
		if n >= next {
			next = n + 1
		}
	}
	return next, nil
}

func (t *memTx) InsertAccount(number int64, bankCode string, balance decimal.Decimal) error {
	now := time.Now()
	t.accounts[number] = &Account{
		Number:    number,
		BankCode:  bankCode,
		Balance:   balance,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (t *memTx) GetAccount(number int64, bankCode string) (*Account, error) {
	acc, ok := t.accounts[number]
	if !ok || acc.BankCode != bankCode {
		return nil, ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (t *memTx) UpdateBalance(number int64, bankCode string, balance decimal.Decimal) error {
	acc, ok := t.accounts[number]
	if !ok || acc.BankCode != bankCode {
		return ErrNotFound
	}
	acc.Balance = balance
	acc.UpdatedAt = time.Now()
	return nil
}

func (t *memTx) AppendLedger(number int64, bankCode string, amount decimal.Decimal, kind LedgerKind, description string) error {
	t.nextID++
	t.ledger = append(t.ledger, LedgerEntry{
		ID:          t.nextID,
		Number:      number,
		BankCode:    bankCode,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		Timestamp:   time.Now(),
	})
	return nil
}

func (t *memTx) DeleteAccount(number int64, bankCode string) error {
	acc, ok := t.accounts[number]
	if !ok || acc.BankCode != bankCode {
		return ErrNotFound
	}
	delete(t.accounts, number)
	return nil
}

func (t *memTx) SumBalances() (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, acc := range t.accounts {
		sum = sum.Add(acc.Balance)
	}
	return sum, nil
}

func (t *memTx) CountAccounts() (int64, error) {
	return int64(len(t.accounts)), nil
}

func (s *Memory) UpsertKnownBank(ctx context.Context, bankCode, ip string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.banks[bankCode] = &KnownBank{
		BankCode:  bankCode,
		IPAddress: ip,
		Port:      port,
		LastSeen:  time.Now(),
		IsActive:  true,
	}
	return nil
}

func (s *Memory) KnownBanks(ctx context.Context) ([]KnownBank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	banks := make([]KnownBank, 0, len(s.banks))
	for _, b := range s.banks {
		banks = append(banks, *b)
	}
	sort.Slice(banks, func(i, j int) bool { return banks[i].LastSeen.After(banks[j].LastSeen) })
	return banks, nil
}

func (s *Memory) Accounts(ctx context.Context) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := make([]Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		accounts = append(accounts, *acc)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Number < accounts[j].Number })
	return accounts, nil
}

// Ledger returns a copy of the transaction log. Test helper; the Postgres
// backend exposes the same data through SQL.
func (s *Memory) Ledger() []LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LedgerEntry(nil), s.ledger...)
}

func (s *Memory) Statistics(ctx context.Context, bankCode string) (*Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &Statistics{
		TotalBalance: decimal.Zero,
		AvgBalance:   decimal.Zero,
		MaxBalance:   decimal.Zero,
		MinBalance:   decimal.Zero,
	}
	first := true
	for _, acc := range s.accounts {
		if acc.BankCode != bankCode {
			continue
		}
		st.TotalAccounts++
		if acc.IsActive {
			st.ActiveAccounts++
		}
		st.TotalBalance = st.TotalBalance.Add(acc.Balance)
		if first || acc.Balance.GreaterThan(st.MaxBalance) {
			st.MaxBalance = acc.Balance
		}
		if first || acc.Balance.LessThan(st.MinBalance) {
			st.MinBalance = acc.Balance
		}
		first = false
	}
	if st.TotalAccounts > 0 {
		st.AvgBalance = st.TotalBalance.DivRound(decimal.NewFromInt(st.TotalAccounts), 2)
	}
	for _, e := range s.ledger {
		if e.BankCode == bankCode {
			st.TotalTransactions++
		}
	}
	st.KnownBanks = int64(len(s.banks))
	for _, b := range s.banks {
		if b.IsActive {
			st.ActiveBanks++
		}
	}
	return st, nil
}

// Close is a no-op for the in-memory backend.
func (s *Memory) Close() {}
