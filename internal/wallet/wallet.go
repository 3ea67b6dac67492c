// Package wallet validates and normalizes Polygon wallet addresses.
package wallet

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Normalize returns the EIP-55 checksummed form of addr. Input may carry a
// 0x prefix or not and arrive in any case; the checksum is recomputed, not
// verified, so copy-pasted lowercase addresses come out canonical.
func Normalize(addr string) (string, error) {
	hex := strings.TrimSpace(addr)
	hex = strings.TrimPrefix(hex, "0x")
	hex = strings.TrimPrefix(hex, "0X")
	if len(hex) != 40 {
		return "", fmt.Errorf("wallet address must be 40 hex chars, got %d", len(hex))
	}

	lower := strings.ToLower(hex)
	for _, c := range lower {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("wallet address has non-hex character %q", c)
		}
	}

	// EIP-55: uppercase each hex letter whose nibble in
	// keccak256(lowercase address) is >= 8.
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	sum := h.Sum(nil)

	out := make([]byte, 40)
	for i := 0; i < 40; i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' {
			nibble := sum[i/2]
			if i%2 == 0 {
				nibble >>= 4
			}
			if nibble&0x0f >= 8 {
				c = c - 'a' + 'A'
			}
		}
		out[i] = c
	}
	return "0x" + string(out), nil
}

// Valid reports whether addr parses as a wallet address.
func Valid(addr string) bool {
	_, err := Normalize(addr)
	return err == nil
}

// Equal reports whether two addresses refer to the same wallet, ignoring
// case and prefix differences.
func Equal(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return na == nb
}
