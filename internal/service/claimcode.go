package service

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strconv"

	"github.com/iliyamo/surplus-market/internal/model"
)

// GenerateClaimCode concatenates the inputs, hashes them with SHA-512 and
// keeps the first model.ClaimCodeLength hex characters.  The result is
// deterministic; reservations pass their own ID as a so every code differs.
func GenerateClaimCode(a, b uint64, title string) string {
	sum := sha512.Sum512([]byte(strconv.FormatUint(a, 10) + strconv.FormatUint(b, 10) + title))
	return hex.EncodeToString(sum[:])[:model.ClaimCodeLength]
}

// claimCodeMatches compares byte for byte in constant time.
func claimCodeMatches(stored, supplied string) bool {
	return len(stored) == len(supplied) &&
		subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
