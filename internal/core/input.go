package core

import (
	"encoding/json"
	"strings"
	"time"
)

// TransactionInput is the raw, user supplied shape of a transaction. It is
// decoded into a Transaction at the boundary so that nothing past this point
// ever sees an unparsable date or amount.
type TransactionInput struct {
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Date        string      `json:"date"`
	Type        string      `json:"type"`
}

// ToTransaction validates the input and returns the transaction owned by userID.
func (in TransactionInput) ToTransaction(userID string) (Transaction, error) {
	amount, err := ParseAmount(in.Amount.String())
	if err != nil {
		return Transaction{}, err
	}
	date, err := ParseDate(in.Date)
	if err != nil {
		return Transaction{}, err
	}
	typ, err := ParseType(in.Type)
	if err != nil {
		return Transaction{}, err
	}
	tx := Transaction{
		UserID:      userID,
		Amount:      amount,
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Date:        date,
		Type:        typ,
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// TransactionPatchInput is the raw shape of a partial update.
type TransactionPatchInput struct {
	Amount      *json.Number `json:"amount,omitempty"`
	Description *string      `json:"description,omitempty"`
	Category    *string      `json:"category,omitempty"`
	Date        *string      `json:"date,omitempty"`
	Type        *string      `json:"type,omitempty"`
}

func (in TransactionPatchInput) ToPatch() (TransactionPatch, error) {
	var p TransactionPatch
	if in.Amount != nil {
		amount, err := ParseAmount(in.Amount.String())
		if err != nil {
			return TransactionPatch{}, err
		}
		p.Amount = &amount
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		if desc == "" {
			return TransactionPatch{}, ErrEmptyDescription
		}
		if len(desc) > maxDescriptionLen {
			return TransactionPatch{}, ErrDescriptionLong
		}
		p.Description = &desc
	}
	if in.Category != nil {
		cat := strings.TrimSpace(*in.Category)
		if cat == "" {
			return TransactionPatch{}, ErrEmptyCategory
		}
		p.Category = &cat
	}
	if in.Date != nil {
		date, err := ParseDate(*in.Date)
		if err != nil {
			return TransactionPatch{}, err
		}
		p.Date = &date
	}
	if in.Type != nil {
		typ, err := ParseType(*in.Type)
		if err != nil {
			return TransactionPatch{}, err
		}
		p.Type = &typ
	}
	return p, nil
}

// ParseDate accepts an RFC 3339 timestamp or a plain YYYY-MM-DD date. Plain
// dates are read as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, ErrInvalidDate
}
