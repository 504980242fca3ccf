// Package authn resolves the caller address of an API request from an HS256
// bearer token, or in dev from a plain address header.
package authn

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

var ErrBadCredentials = errors.New("invalid caller credentials")

type Verifier struct {
	// Secret enables bearer tokens. Empty ignores Authorization entirely.
	Secret []byte
	// AllowAddressHeader trusts a bare caller address. Dev only.
	AllowAddressHeader bool
}

// Resolve returns the caller for the given Authorization and address header
// values. ok is false when neither identifies a caller.
func (v Verifier) Resolve(authorization, addressHeader string) (caller common.Address, ok bool, err error) {
	if authorization != "" && len(v.Secret) > 0 {
		raw, found := strings.CutPrefix(authorization, "Bearer ")
		if !found {
			return common.Address{}, false, fmt.Errorf("%w: expected bearer token", ErrBadCredentials)
		}
		addr, err := v.parse(strings.TrimSpace(raw))
		if err != nil {
			return common.Address{}, false, err
		}
		return addr, true, nil
	}
	if v.AllowAddressHeader {
		if h := strings.TrimSpace(addressHeader); h != "" {
			if !common.IsHexAddress(h) {
				return common.Address{}, false, fmt.Errorf("%w: %q is not an address", ErrBadCredentials, h)
			}
			return common.HexToAddress(h), true, nil
		}
	}
	return common.Address{}, false, nil
}

func (v Verifier) parse(raw string) (common.Address, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	if !common.IsHexAddress(claims.Subject) {
		return common.Address{}, fmt.Errorf("%w: subject is not an address", ErrBadCredentials)
	}
	return common.HexToAddress(claims.Subject), nil
}

// IssueToken signs a caller token for subject valid for ttl.
func IssueToken(secret []byte, subject common.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject.Hex(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
