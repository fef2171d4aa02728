// Package amount parses point amounts from request bodies.
package amount

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalid = errors.New("invalid amount")

var maxPoints = decimal.NewFromInt(1<<63 - 1)

// Parse accepts a JSON number or a JSON string holding a whole, positive
// number of points. Missing values, null, fractions, zero and negatives are
// ErrInvalid.
func Parse(raw json.RawMessage) (int64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, ErrInvalid
	}
	text := string(trimmed)
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return 0, ErrInvalid
		}
		text = strings.TrimSpace(s)
	}
	return ParseString(text)
}

func ParseString(text string) (int64, error) {
	if text == "" {
		return 0, ErrInvalid
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		return 0, ErrInvalid
	}
	if !value.IsInteger() || !value.IsPositive() || value.GreaterThan(maxPoints) {
		return 0, ErrInvalid
	}
	return value.IntPart(), nil
}
