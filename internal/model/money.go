package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Pence is an amount of money in minor currency units (GBX).  Prices are
// never held in floating point; the decimal form "12.34" only exists on
// the wire between the application and the DECIMAL(10,2) columns.
type Pence int64

// maxWholeDigits is the integer width of a DECIMAL(10,2) column.
const maxWholeDigits = 8

// ParsePence converts a non-negative decimal string with at most two
// fractional digits ("12", "12.3", "12.34", ".50") into Pence.  Amounts
// above 99999999.99 do not fit the price columns and are rejected.
func ParsePence(s string) (Pence, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrInvalidArgument)
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac && (len(frac) == 0 || len(frac) > 2) {
		return 0, fmt.Errorf("%w: amount %q must have one or two decimal places", ErrInvalidArgument, s)
	}
	if whole == "" {
		if !hasFrac {
			return 0, fmt.Errorf("%w: amount %q", ErrInvalidArgument, s)
		}
		whole = "0"
	}
	if !allDigits(whole) || !allDigits(frac) {
		return 0, fmt.Errorf("%w: amount %q is not a decimal number", ErrInvalidArgument, s)
	}
	if len(strings.TrimLeft(whole, "0")) > maxWholeDigits {
		return 0, fmt.Errorf("%w: amount %q exceeds 99999999.99", ErrInvalidArgument, s)
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q out of range", ErrInvalidArgument, s)
	}
	var f int64
	switch len(frac) {
	case 1:
		f = int64(frac[0]-'0') * 10
	case 2:
		f = int64(frac[0]-'0')*10 + int64(frac[1]-'0')
	}
	return Pence(w*100 + f), nil
}

// String formats p in the two-decimal wire form, e.g. 1050 -> "10.50".
func (p Pence) String() string {
	v := int64(p)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
