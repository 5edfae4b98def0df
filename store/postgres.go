package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Postgres is the durable Store backend. Balances live in NUMERIC(20,2)
// columns; decimals cross the driver boundary as text so no precision is
// lost in either direction.
type Postgres struct {
	pool *pgxpool.Pool

	// Logical operations are single-writer. The database would also
	// serialise them, but the node's contract is per-operation atomicity,
	// not concurrent writers.
	mu sync.Mutex
}

// NewPostgres connects to PostgreSQL, verifies the connection and creates
// the schema if it does not exist yet.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	s := &Postgres{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Postgres) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			account_number BIGINT PRIMARY KEY,
			bank_code TEXT NOT NULL,
			balance NUMERIC(20,2) NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (account_number, bank_code)
		);

		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			account_number BIGINT NOT NULL,
			bank_code TEXT NOT NULL,
			amount NUMERIC(20,2) NOT NULL,
			transaction_type TEXT NOT NULL,
			description TEXT,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS known_banks (
			bank_code TEXT PRIMARY KEY,
			ip_address TEXT NOT NULL,
			port INTEGER NOT NULL,
			last_seen TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_number, bank_code);
		CREATE INDEX IF NOT EXISTS idx_known_banks_last_seen ON known_banks(last_seen);
	`)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// InTx runs one logical operation inside a transaction. The callback's
// error rolls everything back and is returned unchanged.
func (s *Postgres) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		return fn(&pgTx{ctx: ctx, tx: tx})
	})
}

type pgTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *pgTx) NextAccountNumber() (int64, error) {
	var next int64
	err := t.tx.QueryRow(t.ctx,
		`SELECT COALESCE(MAX(account_number), $1 - 1) + 1 FROM accounts`,
		FirstAccountNumber,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate account number: %w", err)
	}
	return next, nil
}

func (t *pgTx) InsertAccount(number int64, bankCode string, balance decimal.Decimal) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO accounts (account_number, bank_code, balance, is_active)
		VALUES ($1, $2, $3::numeric, TRUE)
	`, number, bankCode, balance.String())
	if err != nil {
		return fmt.Errorf("failed to insert account %d/%s: %w", number, bankCode, err)
	}
	return nil
}

func (t *pgTx) GetAccount(number int64, bankCode string) (*Account, error) {
	var (
		acc        Account
		balanceStr string
	)
	err := t.tx.QueryRow(t.ctx, `
		SELECT account_number, bank_code, balance::text, is_active, created_at, updated_at
		FROM accounts
		WHERE account_number = $1 AND bank_code = $2
	`, number, bankCode).Scan(&acc.Number, &acc.BankCode, &balanceStr, &acc.IsActive, &acc.CreatedAt, &acc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %d/%s: %w", number, bankCode, err)
	}
	acc.Balance, err = decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode balance of %d/%s: %w", number, bankCode, err)
	}
	return &acc, nil
}

func (t *pgTx) UpdateBalance(number int64, bankCode string, balance decimal.Decimal) error {
	tag, err := t.tx.Exec(t.ctx, `
		UPDATE accounts
		SET balance = $3::numeric, updated_at = CURRENT_TIMESTAMP
		WHERE account_number = $1 AND bank_code = $2
	`, number, bankCode, balance.String())
	if err != nil {
		return fmt.Errorf("failed to update balance of %d/%s: %w", number, bankCode, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendLedger(number int64, bankCode string, amount decimal.Decimal, kind LedgerKind, description string) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO transactions (account_number, bank_code, amount, transaction_type, description)
		VALUES ($1, $2, $3::numeric, $4, $5)
	`, number, bankCode, amount.String(), string(kind), description)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry for %d/%s: %w", number, bankCode, err)
	}
	return nil
}

func (t *pgTx) DeleteAccount(number int64, bankCode string) error {
	tag, err := t.tx.Exec(t.ctx, `
		DELETE FROM accounts WHERE account_number = $1 AND bank_code = $2
	`, number, bankCode)
	if err != nil {
		return fmt.Errorf("failed to delete account %d/%s: %w", number, bankCode, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) SumBalances() (decimal.Decimal, error) {
	var sumStr string
	err := t.tx.QueryRow(t.ctx, `SELECT COALESCE(SUM(balance), 0)::text FROM accounts`).Scan(&sumStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum balances: %w", err)
	}
	return decimal.NewFromString(sumStr)
}

func (t *pgTx) CountAccounts() (int64, error) {
	var count int64
	if err := t.tx.QueryRow(t.ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count, nil
}

// UpsertKnownBank records a successful proxy hop: insert the peer or
// refresh last_seen and reactivate it.
func (s *Postgres) UpsertKnownBank(ctx context.Context, bankCode, ip string, port int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO known_banks (bank_code, ip_address, port, last_seen, is_active)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP, TRUE)
		ON CONFLICT (bank_code) DO UPDATE SET
			ip_address = EXCLUDED.ip_address,
			port = EXCLUDED.port,
			last_seen = CURRENT_TIMESTAMP,
			is_active = TRUE
	`, bankCode, ip, port)
	if err != nil {
		return fmt.Errorf("failed to upsert known bank %s: %w", bankCode, err)
	}
	return nil
}

func (s *Postgres) KnownBanks(ctx context.Context) ([]KnownBank, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT bank_code, ip_address, port, last_seen, is_active
		FROM known_banks
		ORDER BY last_seen DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list known banks: %w", err)
	}
	defer rows.Close()

	var banks []KnownBank
	for rows.Next() {
		var b KnownBank
		if err := rows.Scan(&b.BankCode, &b.IPAddress, &b.Port, &b.LastSeen, &b.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan known bank: %w", err)
		}
		banks = append(banks, b)
	}
	return banks, rows.Err()
}

func (s *Postgres) Accounts(ctx context.Context) ([]Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT account_number, bank_code, balance::text, is_active, created_at, updated_at
		FROM accounts
		ORDER BY account_number
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var (
			acc        Account
			balanceStr string
		)
		if err := rows.Scan(&acc.Number, &acc.BankCode, &balanceStr, &acc.IsActive, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if acc.Balance, err = decimal.NewFromString(balanceStr); err != nil {
			return nil, fmt.Errorf("failed to decode balance: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func (s *Postgres) Statistics(ctx context.Context, bankCode string) (*Statistics, error) {
	var (
		st                              Statistics
		totalStr, avgStr, maxStr, minStr string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(balance), 0)::text,
		       COALESCE(AVG(balance), 0)::numeric(20,2)::text,
		       COALESCE(MAX(balance), 0)::text,
		       COALESCE(MIN(balance), 0)::text
		FROM accounts
		WHERE bank_code = $1
	`, bankCode).Scan(&st.TotalAccounts, &st.ActiveAccounts, &totalStr, &avgStr, &maxStr, &minStr)
	if err != nil {
		return nil, fmt.Errorf("failed to query account statistics: %w", err)
	}

	if st.TotalBalance, err = decimal.NewFromString(totalStr); err != nil {
		return nil, err
	}
	if st.AvgBalance, err = decimal.NewFromString(avgStr); err != nil {
		return nil, err
	}
	if st.MaxBalance, err = decimal.NewFromString(maxStr); err != nil {
		return nil, err
	}
	if st.MinBalance, err = decimal.NewFromString(minStr); err != nil {
		return nil, err
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE bank_code = $1`, bankCode,
	).Scan(&st.TotalTransactions)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction statistics: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0)
		FROM known_banks
	`).Scan(&st.KnownBanks, &st.ActiveBanks)
	if err != nil {
		return nil, fmt.Errorf("failed to query known bank statistics: %w", err)
	}

	return &st, nil
}

// Close releases the connection pool.
func (s *Postgres) Close() {
	s.pool.Close()
}
