package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// SumSHA256 returns the lowercase hex SHA-256 digest of b.
func SumSHA256(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SumSHA256Reader digests r to EOF.
func SumSHA256Reader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
