package domain

import (
	"strings"
	"time"
)

// Recipient identifies the person physically receiving a cheque.
type Recipient struct {
	Name     string `json:"recipientName"`
	IDType   string `json:"idType"`
	IDNumber string `json:"idNumber"`
}

// Proof holds references to uploaded artifacts collected at handover.
type Proof struct {
	PhotoRef     string `json:"recipientPhotoPath"`
	SignatureRef string `json:"signaturePath"`
}

// MissingFields returns the names of required recipient and proof fields that are empty.
func MissingFields(r Recipient, p Proof) []string {
	var missing []string
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, "recipientName")
	}
	if strings.TrimSpace(r.IDType) == "" {
		missing = append(missing, "idType")
	}
	if strings.TrimSpace(r.IDNumber) == "" {
		missing = append(missing, "idNumber")
	}
	if strings.TrimSpace(p.PhotoRef) == "" {
		missing = append(missing, "recipientPhotoPath")
	}
	if strings.TrimSpace(p.SignatureRef) == "" {
		missing = append(missing, "signaturePath")
	}
	return missing
}

// HandoverRecord is written exactly once, when a cheque is issued. Immutable.
type HandoverRecord struct {
	ID                 string    `json:"id"`
	ChequeID           string    `json:"chequeId"`
	RecipientName      string    `json:"recipientName"`
	IDType             string    `json:"idType"`
	IDNumber           string    `json:"idNumber"`
	RecipientPhotoRef  string    `json:"recipientPhotoPath"`
	SignatureRef       string    `json:"signaturePath"`
	HandedBy           string    `json:"handedBy"`
	HandedAt           time.Time `json:"handedAt"`
	IsOverride         bool      `json:"isOverride"`
	OverrideRequestID  string    `json:"overrideRequestId,omitempty"`
	OverrideApprovedBy string    `json:"overrideApprovedBy,omitempty"`
	OverrideReason     string    `json:"overrideReason,omitempty"`
}
