package bank

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tekuprogramming/bank-p2p/monitor"
	"github.com/tekuprogramming/bank-p2p/protocol"
	"github.com/tekuprogramming/bank-p2p/store"
)

// maxTxAmount caps a single deposit or withdrawal.
var maxTxAmount = decimal.NewFromInt(1_000_000)

// splitAccountInfo splits "number/bank_code" on the first slash. The bank
// part may carry an explicit ":port" for non-default peers.
func splitAccountInfo(accountInfo string) (string, string, error) {
	if !strings.Contains(accountInfo, "/") {
		return "", "", domainError(msgInvalidAccountFormat)
	}
	parts := strings.SplitN(accountInfo, "/", 2)
	return parts[0], parts[1], nil
}

// BC
func (n *Node) getBankCode(ctx context.Context, args []string, clientIP string) (any, error) {
	if len(args) != 0 {
		return nil, errBadArity
	}
	return n.bankCode, nil
}

// AC
func (n *Node) createAccount(ctx context.Context, args []string, clientIP string) (any, error) {
	if len(args) > 1 {
		return nil, errBadArity
	}

	balanceStr := "0.0"
	if len(args) == 1 {
		balanceStr = args[0]
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, domainError("Invalid initial balance")
	}
	if balance.Sign() < 0 {
		return nil, domainError("Initial balance cannot be negative")
	}

	var number int64
	err = n.store.InTx(ctx, func(tx store.Tx) error {
		number, err = tx.NextAccountNumber()
		if err != nil {
			return err
		}
		if number > store.LastAccountNumber {
			return domainError("Bank account limit reached")
		}
		if err := tx.InsertAccount(number, n.bankCode, balance); err != nil {
			return err
		}
		if balance.Sign() > 0 {
			return tx.AppendLedger(number, n.bankCode, balance, store.LedgerInitialDeposit, "Initial deposit")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	accountInfo := fmt.Sprintf("%d/%s", number, n.bankCode)
	n.log.Info().
		Str("account", accountInfo).
		Str("balance", balance.String()).
		Msg("Account created")
	n.mon.Publish(monitor.EventAccount, "Created: "+accountInfo)
	return accountInfo, nil
}

// AD
func (n *Node) deposit(ctx context.Context, args []string, clientIP string) (any, error) {
	if len(args) == 0 || len(args) > 2 {
		return nil, errBadArity
	}
	accountInfo := args[0]
	amountStr := ""
	if len(args) == 2 {
		amountStr = args[1]
	}

	numberStr, bankCode, err := splitAccountInfo(accountInfo)
	if err != nil {
		return nil, err
	}
	// Routing happens before amount validation: the owning bank is the
	// authority on the rest of the command.
	if bankCode != n.bankCode {
		return n.forward(ctx, protocol.CmdDeposit, accountInfo, amountStr, bankCode)
	}
	if amountStr == "" {
		return nil, errBadArity
	}

	number, amount, err := parseNumberAndAmount(numberStr, amountStr)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(maxTxAmount) {
		return nil, domainError("Maximum deposit amount is $1,000,000")
	}

	err = n.store.InTx(ctx, func(tx store.Tx) error {
		acc, err := tx.GetAccount(number, bankCode)
		if errors.Is(err, store.ErrNotFound) {
			return domainError(msgAccountNotFound)
		}
		if err != nil {
			return err
		}
		if !acc.IsActive {
			return domainError(msgAccountInactive)
		}
		if err := tx.UpdateBalance(number, bankCode, acc.Balance.Add(amount)); err != nil {
			return err
		}
		return tx.AppendLedger(number, bankCode, amount, store.LedgerDeposit, "Deposit from network")
	})
	if err != nil {
		return nil, err
	}

	n.log.Info().
		Str("account", accountInfo).
		Str("amount", amount.String()).
		Msg("Deposit")
	n.mon.Publish(monitor.EventTransaction, fmt.Sprintf("Deposit: %s +$%s", accountInfo, amount))
	return nil, nil
}

// AW
func (n *Node) withdraw(ctx context.Context, args []string, clientIP string) (any, error) {
	if len(args) == 0 || len(args) > 2 {
		return nil, errBadArity
	}
	accountInfo := args[0]
	amountStr := ""
	if len(args) == 2 {
		amountStr = args[1]
	}

	numberStr, bankCode, err := splitAccountInfo(accountInfo)
	if err != nil {
		return nil, err
	}
	if bankCode != n.bankCode {
		return n.forward(ctx, protocol.CmdWithdraw, accountInfo, amountStr, bankCode)
	}
	if amountStr == "" {
		return nil, errBadArity
	}

	number, amount, err := parseNumberAndAmount(numberStr, amountStr)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(maxTxAmount) {
		return nil, domainError("Maximum withdrawal amount is $1,000,000")
	}

	err = n.store.InTx(ctx, func(tx store.Tx) error {
		acc, err := tx.GetAccount(number, bankCode)
		if errors.Is(err, store.ErrNotFound) {
			return domainError(msgAccountNotFound)
		}
		if err != nil {
			return err
		}
		if !acc.IsActive {
			return domainError(msgAccountInactive)
		}
		if acc.Balance.LessThan(amount) {
			return domainError("Insufficient funds")
		}
		if err := tx.UpdateBalance(number, bankCode, acc.Balance.Sub(amount)); err != nil {
			return err
		}
		return tx.AppendLedger(number, bankCode, amount, store.LedgerWithdrawal, "Withdrawal from network")
	})
	if err != nil {
		return nil, err
	}

	n.log.Info().
		Str("account", accountInfo).
		Str("amount", amount.String()).
		Msg("Withdrawal")
	n.mon.Publish(monitor.EventTransaction, fmt.Sprintf("Withdrawal: %s -$%s", accountInfo, amount))
	return nil, nil
}

// AB
func (n *Node) getBalance(ctx context.Context, args []string, clientIP string) (any, error) {
	if len(args) != 1 {
		return nil, errBadArity
	}
	accountInfo := args[0]

	numberStr, bankCode, err := splitAccountInfo(accountInfo)
	if err != nil {
		return nil, err
	}
	if bankCode != n.bankCode {
		return n.forward(ctx, protocol.CmdBalance, accountInfo, "", bankCode)
	}

	number, err := strconv.ParseInt(numberStr, 10, 64)
	if err != nil {
		return nil, domainError(msgInvalidAccountNumber)
	}

	var balance decimal.Decimal
	err = n.store.InTx(ctx, func(tx store.Tx) error {
		acc, err := tx.GetAccount(number, bankCode)
		if errors.Is(err, store.ErrNotFound) {
			return domainError("Account not found or inactive")
		}
		if err != nil {
			return err
		}
		if !acc.IsActive {
			return domainError("Account not found or inactive")
		}
		balance = acc.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance.String(), nil
}

// AR
func (n *Node) removeAccount(ctx context.Context, args []string, clientIP string) (any, error) {
	if len(args) != 1 {
		return nil, errBadArity
	}
	accountInfo := args[0]

	numberStr, bankCode, err := splitAccountInfo(accountInfo)
	if err != nil {
		return nil, err
	}
	if bankCode != n.bankCode {
		return n.forward(ctx, protocol.CmdRemoveAccount, accountInfo, "", bankCode)
	}

	number, err := strconv.ParseInt(numberStr, 10, 64)
	if err != nil {
		return nil, domainError(msgInvalidAccountNumber)
	}

	err = n.store.InTx(ctx, func(tx store.Tx) error {
		acc, err := tx.GetAccount(number, bankCode)
		if errors.Is(err, store.ErrNotFound) {
			return domainError(msgAccountNotFound)
		}
		if err != nil {
			return err
		}
		if acc.Balance.Sign() > 0 {
			return domainError("Cannot delete bank account containing funds")
		}
		return tx.DeleteAccount(number, bankCode)
	})
	if err != nil {
		return nil, err
	}

	n.log.Info().Str("account", accountInfo).Msg("Account removed")
	n.mon.Publish(monitor.EventAccount, "Removed: "+accountInfo)
	return nil, nil
}

// BA
func (n *Node) bankAmount(ctx context.Context, args []string, clientIP string) (any, error) {
	if len(args) != 0 {
		return nil, errBadArity
	}
	var sum decimal.Decimal
	err := n.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		sum, err = tx.SumBalances()
		return err
	})
	if err != nil {
		return nil, err
	}
	return sum.String(), nil
}

// BN
func (n *Node) bankNumberOfClients(ctx context.Context, args []string, clientIP string) (any, error) {
	if len(args) != 0 {
		return nil, errBadArity
	}
	var count int64
	err := n.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		count, err = tx.CountAccounts()
		return err
	})
	if err != nil {
		return nil, err
	}
	return count, nil
}

// parseNumberAndAmount parses the numeric halves of AD/AW. Either parse
// failure collapses into one format error; the positivity check is a
// distinct policy error.
func parseNumberAndAmount(numberStr, amountStr string) (int64, decimal.Decimal, error) {
	number, err := strconv.ParseInt(numberStr, 10, 64)
	if err != nil {
		return 0, decimal.Zero, domainError(msgInvalidNumberAmount)
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return 0, decimal.Zero, domainError(msgInvalidNumberAmount)
	}
	if amount.Sign() <= 0 {
		return 0, decimal.Zero, domainError(msgAmountNotPositive)
	}
	return number, amount, nil
}
