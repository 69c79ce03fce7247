package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Type = "income"
	Expense Type = "expense"
)

const maxDescriptionLen = 200

type (
	// Type classifies a transaction. Only Income and Expense are valid.
	Type string

	Transaction struct {
		ID          string          `json:"id,omitempty"`
		UserID      string          `json:"userId"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
		Category    string          `json:"category"`
		Date        time.Time       `json:"date"`
		Type        Type            `json:"type"`
	}

	// Category is a user-scoped label. Nothing in the aggregation engine reads it.
	Category struct {
		ID     string `json:"id,omitempty"`
		UserID string `json:"userId"`
		Name   string `json:"name"`
		Icon   string `json:"icon,omitempty"`
		Color  string `json:"color,omitempty"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyUser        = errors.New("empty user id")
	ErrEmptyName        = errors.New("empty category name")
	ErrDescriptionLong  = errors.New("description too long (max 200 characters)")
)

// ParseType maps the wire value onto a Type, rejecting anything but income and expense.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrInvalidType
	}
	return t, nil
}

func (t Type) Valid() bool {
	return t == Income || t == Expense
}

func (t Type) String() string {
	return string(t)
}

func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t), nil
}

func (tx Transaction) IsIncome() bool {
	return tx.Type == Income
}

func (tx Transaction) Validate() error {
	if strings.TrimSpace(tx.UserID) == "" {
		return ErrEmptyUser
	}
	if tx.Date.IsZero() {
		return ErrInvalidDate
	}
	if !tx.Type.Valid() {
		return ErrInvalidType
	}
	if err := ValidateAmount(tx.Amount); err != nil {
		return err
	}
	if len(strings.TrimSpace(tx.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(tx.Description) > maxDescriptionLen {
		return ErrDescriptionLong
	}
	if strings.TrimSpace(tx.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

// TransactionPatch is a partial update; nil fields are left untouched.
type TransactionPatch struct {
	Amount      *decimal.Decimal
	Description *string
	Category    *string
	Date        *time.Time
	Type        *Type
}

// Apply returns a copy of tx with the patch fields applied.
func (p TransactionPatch) Apply(tx Transaction) Transaction {
	if p.Amount != nil {
		tx.Amount = *p.Amount
	}
	if p.Description != nil {
		tx.Description = *p.Description
	}
	if p.Category != nil {
		tx.Category = *p.Category
	}
	if p.Date != nil {
		tx.Date = *p.Date
	}
	if p.Type != nil {
		tx.Type = *p.Type
	}
	return tx
}

func (p TransactionPatch) IsEmpty() bool {
	return p.Amount == nil && p.Description == nil && p.Category == nil && p.Date == nil && p.Type == nil
}

type CategoryPatch struct {
	Name  *string
	Icon  *string
	Color *string
}

func (p CategoryPatch) Apply(c Category) Category {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Icon != nil {
		c.Icon = *p.Icon
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	return c
}
