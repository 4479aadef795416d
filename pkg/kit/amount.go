package kit

import (
	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"
)

// Amount is a decimal quantity in display units. It decodes from a JSON number
// or a numeric string.
type Amount struct {
	decimal.Decimal
}

// NewAmount parses s.
func NewAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Decimal: d}, nil
}

// MustAmount parses s and panics on failure. Intended for constants and tests.
func MustAmount(s string) Amount {
	a, err := NewAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// JSONSchema makes the reflected schema a plain number.
func (Amount) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "number"}
}
