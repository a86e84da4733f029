package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the custody status of a cheque.
type Status string

const (
	StatusSigned           Status = "SIGNED"
	StatusReadyForDispatch Status = "READY_FOR_DISPATCH"
	StatusWithReception    Status = "WITH_RECEPTION"
	StatusIssued           Status = "ISSUED"
	StatusCancelled        Status = "CANCELLED"
)

// DefaultCurrency is used when a cheque is created without one.
const DefaultCurrency = "INR"

// MaxAmount is the largest amount the NUMERIC(18,2) column holds.
var MaxAmount = decimal.RequireFromString("9999999999999999.99")

// transitions is the lifecycle graph. Cancellation is allowed from every
// non-terminal state and is handled by IsTerminal.
var transitions = map[Status]Status{
	StatusSigned:           StatusReadyForDispatch,
	StatusReadyForDispatch: StatusWithReception,
	StatusWithReception:    StatusIssued,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSigned, StatusReadyForDispatch, StatusWithReception, StatusIssued, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s Status) IsTerminal() bool {
	return s == StatusIssued || s == StatusCancelled
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to Status) bool {
	if to == StatusCancelled {
		return from.Valid() && !from.IsTerminal()
	}
	next, ok := transitions[from]
	return ok && next == to
}

// Cheque is the aggregate root of the custody protocol. Status is only
// changed by the lifecycle service.
type Cheque struct {
	ID          string          `json:"id"`
	ChequeNo    string          `json:"chequeNo"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Bank        string          `json:"bank"`
	Branch      string          `json:"branch"`
	PayerName   string          `json:"payerName"`
	PayeeName   string          `json:"payeeName"`
	DueDate     time.Time       `json:"dueDate"`
	Status      Status          `json:"status"`
	InitiatorID string          `json:"initiatorId"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Validate checks the fields required at creation.
func (c *Cheque) Validate() error {
	if strings.TrimSpace(c.ChequeNo) == "" {
		return errors.New("cheque number is required")
	}
	if !c.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	if c.Amount.GreaterThan(MaxAmount) {
		return errors.New("amount exceeds " + MaxAmount.StringFixed(2))
	}
	if c.Amount.Exponent() < -2 && !c.Amount.Equal(c.Amount.Round(2)) {
		return errors.New("amount must have at most two decimal places")
	}
	if strings.TrimSpace(c.Bank) == "" {
		return errors.New("bank is required")
	}
	if strings.TrimSpace(c.PayerName) == "" {
		return errors.New("payer name is required")
	}
	if strings.TrimSpace(c.PayeeName) == "" {
		return errors.New("payee name is required")
	}
	if c.DueDate.IsZero() {
		return errors.New("due date is required")
	}
	if strings.TrimSpace(c.InitiatorID) == "" {
		return errors.New("initiator is required")
	}
	return nil
}
