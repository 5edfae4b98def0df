package bank

import "errors"

// DomainError carries a message that is part of the external contract:
// clients receive it verbatim after the "ER " prefix and may match on it.
type DomainError struct {
	msg string
}

func (e *DomainError) Error() string { return e.msg }

func domainError(msg string) error { return &DomainError{msg: msg} }

// Protocol-level errors produced by the dispatcher.
var (
	errUnknownCommand        = domainError("Unknown command")
	errCommandNotImplemented = domainError("Command not implemented")
	errCommandIncomplete     = domainError("Command incomplete")
)

// errBadArity marks a wrong argument count. It is not a DomainError; the
// dispatcher folds it into the Command incomplete catch-all.
var errBadArity = errors.New("wrong argument count")

// Domain error messages shared by several handlers.
const (
	msgInvalidAccountFormat = "Invalid account format. Use: account_number/bank_code"
	msgInvalidAccountNumber = "Invalid account number"
	msgInvalidNumberAmount  = "Invalid account number or amount format"
	msgAccountNotFound      = "Account not found"
	msgAccountInactive      = "Account is not active"
	msgAmountNotPositive    = "Amount must be positive"
)
