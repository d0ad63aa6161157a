package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// ComputeMatrixFingerprint produces a deterministic fingerprint of a
// column-major numeric matrix. NaN cells hash to a fixed marker so that
// missing-value layout participates in the fingerprint.
func ComputeMatrixFingerprint(columns map[string][]float64) Hash {
	keys := make([]string, 0, len(columns))
	for k := range columns {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		for _, v := range columns[key] {
			if math.IsNaN(v) {
				data.WriteString("|nan")
				continue
			}
			data.WriteString(fmt.Sprintf("|%.12g", v))
		}
	}
	return NewHash([]byte(data.String()))
}

// ComputeConfigFingerprint hashes an ordered rendering of config values so a
// run manifest pins the exact thresholds it was produced under.
func ComputeConfigFingerprint(values map[string]interface{}) Hash {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteString(fmt.Sprintf("=%v;", values[key]))
	}
	return NewHash([]byte(data.String()))
}
