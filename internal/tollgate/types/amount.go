package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common/math"
	"gopkg.in/yaml.v3"
)

// Amount is a non-negative quantity of an asset expressed in base units.
// The zero value is a valid zero amount.
//
// JSON and YAML accept either a decimal/hex string or a bare integer;
// JSON output is always a quoted decimal string.
type Amount struct {
	v *big.Int
}

func NewAmount(n uint64) Amount {
	return Amount{v: new(big.Int).SetUint64(n)}
}

// AmountFromBig copies b. Negative values are rejected.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Amount{}, nil
	}
	if b.Sign() < 0 {
		return Amount{}, fmt.Errorf("amount %s is negative", b)
	}
	return Amount{v: new(big.Int).Set(b)}, nil
}

// ParseAmount parses a decimal or 0x-prefixed hex string bounded to 256 bits.
func ParseAmount(s string) (Amount, error) {
	b, ok := math.ParseBig256(s)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return AmountFromBig(b)
}

// MustAmount is ParseAmount for constants and tests.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Big returns a copy of the underlying integer.
func (a Amount) Big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.v)
}

func (a Amount) IsZero() bool { return a.v == nil || a.v.Sign() == 0 }

func (a Amount) Cmp(b Amount) int { return a.Big().Cmp(b.Big()) }

func (a Amount) Equal(b Amount) bool { return a.Cmp(b) == 0 }

func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.Big(), b.Big())}
}

// Sub returns a-b and false when the result would be negative.
func (a Amount) Sub(b Amount) (Amount, bool) {
	d := new(big.Int).Sub(a.Big(), b.Big())
	if d.Sign() < 0 {
		return Amount{}, false
	}
	return Amount{v: d}, true
}

// SubFloor returns a-b clamped at zero.
func (a Amount) SubFloor(b Amount) Amount {
	d, ok := a.Sub(b)
	if !ok {
		return Amount{}
	}
	return d
}

func (a Amount) String() string { return a.Big().String() }

func (a Amount) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(bytes.TrimSpace(text)))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.String())), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return a.UnmarshalText([]byte(s))
	}
	return a.UnmarshalText(data)
}

func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("amount must be a scalar, got line %d", value.Line)
	}
	return a.UnmarshalText([]byte(value.Value))
}

func (a Amount) MarshalYAML() (any, error) { return a.String(), nil }
