package store

import (
	"fmt"

	"voxafi/internal/core"
)

// Op is a comparison operator understood by every store adapter.
type Op string

const (
	OpEquals Op = "=="
)

// Collection names a flat set of records in the store.
type Collection string

const (
	Transactions Collection = "transactions"
	Categories   Collection = "categories"
)

// Field names as they appear on the wire.
const (
	FieldUserID   = "userId"
	FieldCategory = "category"
	FieldType     = "type"
	FieldName     = "name"
)

var queryableFields = map[Collection]map[string]struct{}{
	Transactions: {FieldUserID: {}, FieldCategory: {}, FieldType: {}},
	Categories:   {FieldUserID: {}, FieldName: {}},
}

// Predicate is a typed filter: Field Op Value.
type Predicate struct {
	Field string
	Op    Op
	Value string
}

// Eq builds an equality predicate.
func Eq(field, value string) Predicate {
	return Predicate{Field: field, Op: OpEquals, Value: value}
}

// ByUser is the predicate every per-user list query starts from.
func ByUser(userID string) Predicate {
	return Eq(FieldUserID, userID)
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %q", p.Field, p.Op, p.Value)
}

// Validate checks that the operator is supported and the field can be queried
// on the given collection.
func (p Predicate) Validate(c Collection) error {
	if p.Op != OpEquals {
		return fmt.Errorf("%w: operator %q", ErrUnsupportedPredicate, p.Op)
	}
	fields, ok := queryableFields[c]
	if !ok {
		return fmt.Errorf("%w: unknown collection %q", ErrUnsupportedPredicate, c)
	}
	if _, ok := fields[p.Field]; !ok {
		return fmt.Errorf("%w: field %q on %s", ErrUnsupportedPredicate, p.Field, c)
	}
	return nil
}

// ValidateAll validates every predicate against the collection.
func ValidateAll(c Collection, preds []Predicate) error {
	for _, p := range preds {
		if err := p.Validate(c); err != nil {
			return err
		}
	}
	return nil
}

// MatchTransaction reports whether tx satisfies every predicate. Predicates
// must already be validated.
func MatchTransaction(tx core.Transaction, preds []Predicate) bool {
	for _, p := range preds {
		var v string
		switch p.Field {
		case FieldUserID:
			v = tx.UserID
		case FieldCategory:
			v = tx.Category
		case FieldType:
			v = tx.Type.String()
		}
		if v != p.Value {
			return false
		}
	}
	return true
}

// MatchCategory reports whether c satisfies every predicate.
func MatchCategory(c core.Category, preds []Predicate) bool {
	for _, p := range preds {
		var v string
		switch p.Field {
		case FieldUserID:
			v = c.UserID
		case FieldName:
			v = c.Name
		}
		if v != p.Value {
			return false
		}
	}
	return true
}
