package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusSigned, StatusReadyForDispatch, true},
		{StatusReadyForDispatch, StatusWithReception, true},
		{StatusWithReception, StatusIssued, true},
		{StatusSigned, StatusWithReception, false},
		{StatusSigned, StatusIssued, false},
		{StatusReadyForDispatch, StatusIssued, false},
		{StatusIssued, StatusReadyForDispatch, false},
		{StatusSigned, StatusCancelled, true},
		{StatusReadyForDispatch, StatusCancelled, true},
		{StatusWithReception, StatusCancelled, true},
		{StatusIssued, StatusCancelled, false},
		{StatusCancelled, StatusCancelled, false},
		{Status("BOGUS"), StatusCancelled, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	for _, s := range []Status{StatusIssued, StatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusSigned, StatusReadyForDispatch, StatusWithReception} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func validCheque() *Cheque {
	return &Cheque{
		ChequeNo:    "000123",
		Amount:      decimal.RequireFromString("50000"),
		Bank:        "HDFC",
		Branch:      "Fort",
		PayerName:   "Acme Ltd",
		PayeeName:   "Globex",
		DueDate:     time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		InitiatorID: "op-initiator",
	}
}

func TestCheque_Validate(t *testing.T) {
	if err := validCheque().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Cheque)
	}{
		{"empty cheque number", func(c *Cheque) { c.ChequeNo = " " }},
		{"zero amount", func(c *Cheque) { c.Amount = decimal.Zero }},
		{"negative amount", func(c *Cheque) { c.Amount = decimal.RequireFromString("-1") }},
		{"amount over column precision", func(c *Cheque) { c.Amount = decimal.RequireFromString("1e16") }},
		{"sub-paisa amount", func(c *Cheque) { c.Amount = decimal.RequireFromString("10.005") }},
		{"missing bank", func(c *Cheque) { c.Bank = "" }},
		{"missing payer", func(c *Cheque) { c.PayerName = "" }},
		{"missing payee", func(c *Cheque) { c.PayeeName = "" }},
		{"missing due date", func(c *Cheque) { c.DueDate = time.Time{} }},
		{"missing initiator", func(c *Cheque) { c.InitiatorID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCheque()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("Validate should fail")
			}
		})
	}
}

func TestCheque_ValidateAcceptsMaxAmount(t *testing.T) {
	c := validCheque()
	c.Amount = MaxAmount
	if err := c.Validate(); err != nil {
		t.Errorf("Validate(MaxAmount) = %v, want nil", err)
	}
}

func TestMissingFields(t *testing.T) {
	full := Recipient{Name: "R. Kumar", IDType: "PAN", IDNumber: "ABCDE1234F"}
	proof := Proof{PhotoRef: "photo/a.jpg", SignatureRef: "signature/b.png"}
	if got := MissingFields(full, proof); len(got) != 0 {
		t.Errorf("MissingFields = %v, want none", got)
	}
	got := MissingFields(Recipient{Name: "R. Kumar"}, Proof{PhotoRef: "photo/a.jpg"})
	want := []string{"idType", "idNumber", "signaturePath"}
	if len(got) != len(want) {
		t.Fatalf("MissingFields = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("MissingFields[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
