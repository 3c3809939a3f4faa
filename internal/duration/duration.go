// Package duration parses the compact duration strings used throughout the
// configuration ("1m", "5m", "1.5h", "1m30s").
package duration

import (
	"fmt"
	"strconv"
	"time"
	"unicode"
)

// seconds per unit
var units = map[rune]float64{
	's': 1,
	'm': 60,
	'h': 60 * 60,
	'd': 60 * 60 * 24,
	'y': 60 * 60 * 24 * 365,
}

// Parse converts a compact duration string to a time.Duration.
//
// A term is a decimal value followed by an optional unit (s, m, h, d, y);
// a bare value counts as seconds. Multiple whitespace-separated terms sum,
// as do directly adjacent terms ("1m30s"). Anything else is an error.
func Parse(s string) (time.Duration, error) {
	var total float64
	var value string

	flush := func(unit float64) error {
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid duration %q", s)
		}
		total += unit * n
		value = ""
		return nil
	}

	for _, c := range s + " " {
		switch {
		case c >= '0' && c <= '9' || c == '.':
			value += string(c)
		case units[c] != 0 && value != "":
			if err := flush(units[c]); err != nil {
				return 0, err
			}
		case unicode.IsSpace(c):
			if value != "" {
				if err := flush(units['s']); err != nil {
					return 0, err
				}
			}
		default:
			return 0, fmt.Errorf("invalid duration %q", s)
		}
	}

	return time.Duration(total * float64(time.Second)), nil
}
