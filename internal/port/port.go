// Package port holds the forwarded-port value object.
package port

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalid is returned by Parse for anything that is not a run of digits.
var ErrInvalid = errors.New("invalid port")

// Port is a validated ephemeral port as issued by the provider. The zero
// value is not a valid port.
type Port struct {
	digits string
}

// Parse trims s and accepts it only if it is non-empty and made of ASCII
// decimal digits. It never truncates or coerces.
func Parse(s string) (Port, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Port{}, fmt.Errorf("%w: empty value", ErrInvalid)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Port{}, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
	}
	return Port{digits: s}, nil
}

func (p Port) String() string { return p.digits }

// Int returns the numeric value, or 0 if it does not fit in an int.
func (p Port) Int() int {
	n, err := strconv.Atoi(p.digits)
	if err != nil {
		return 0
	}
	return n
}

// InRange reports whether p is a usable TCP/UDP port number.
func (p Port) InRange() bool {
	n := p.Int()
	return n > 0 && n <= 65535
}

// IsZero reports whether p was never set.
func (p Port) IsZero() bool { return p.digits == "" }
