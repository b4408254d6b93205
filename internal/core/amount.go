package core

import (
	"bytes"
	"math"
	"strconv"
	"strings"
)

// Amount is a whole-unit monetary amount with no sub-unit precision.
//
// Snapshots written by older exports sometimes carry amounts as quoted strings
// or floats, so JSON decoding is lenient: anything unparseable decodes as
// invalid instead of failing the whole snapshot, and the ledger skips it.
type Amount struct {
	Value int64
	Valid bool
}

// NewAmount returns a valid amount.
func NewAmount(v int64) Amount {
	return Amount{Value: v, Valid: true}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(a.Value, 10)), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(bytes.TrimSpace(data))
	if s == "" || s == "null" {
		*a = Amount{}
		return nil
	}
	s = strings.Trim(s, `"`)
	s = strings.ReplaceAll(s, ",", "")
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*a = NewAmount(v)
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		*a = NewAmount(int64(math.Round(f)))
		return nil
	}
	// Corrupt value: decode as invalid, never abort the snapshot.
	*a = Amount{}
	return nil
}
