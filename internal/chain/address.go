package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// flowAddressLength is the byte length of a Flow account address
const flowAddressLength = 8

// NormalizeAddress validates a Flow address and returns it as lower-case,
// 0x-prefixed, zero-padded hex.
func NormalizeAddress(addr string) (string, error) {
	body := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(addr)), "0x")
	if body == "" || len(body) > flowAddressLength*2 {
		return "", fmt.Errorf("invalid flow address %q", addr)
	}
	body = strings.Repeat("0", flowAddressLength*2-len(body)) + body

	b, err := hexutil.Decode("0x" + body)
	if err != nil {
		return "", fmt.Errorf("invalid flow address %q: %w", addr, err)
	}
	return hexutil.Encode(b), nil
}

// SameAddress compares two addresses after normalization. Values that are not
// valid addresses are compared case-insensitively.
func SameAddress(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	na, errA := NormalizeAddress(a)
	nb, errB := NormalizeAddress(b)
	if errA == nil && errB == nil {
		return na == nb
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// CanonicalTxID returns the canonical form of a transaction id so that the
// same transaction spelled differently dedupes to one key.
func CanonicalTxID(id string) string {
	s := strings.ToLower(strings.TrimSpace(id))
	body := strings.TrimPrefix(s, "0x")
	if body == "" || len(body) > common.HashLength*2 || !isHex(body) {
		return s
	}
	return common.HexToHash(body).Hex()
}

func isHex(s string) bool {
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
