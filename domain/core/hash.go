package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
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

// Short returns the first 12 hex characters, enough to label a run.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// ComputeDatasetHash fingerprints tabular input independently of row-map key order.
func ComputeDatasetHash(headers []string, rows []map[string]string) Hash {
	cols := append([]string(nil), headers...)
	sort.Strings(cols)

	var data strings.Builder
	data.WriteString(strings.Join(cols, "\x1f"))
	for _, row := range rows {
		data.WriteByte('\n')
		for _, col := range cols {
			data.WriteString(row[col])
			data.WriteByte('\x1f')
		}
	}
	return NewHash([]byte(data.String()))
}

// ComputeConfigHash fingerprints a flat settings map.
func ComputeConfigHash(settings map[string]interface{}) Hash {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteString(fmt.Sprintf("=%v;", settings[key]))
	}
	return NewHash([]byte(data.String()))
}
