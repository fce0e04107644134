package seed

import (
	"crypto/sha256"
	"encoding/binary"
	"slices"
	"strconv"
	"strings"
)

// #region input
// Input is the canonical description of one aggregation call.
type Input struct {
	Claim         string
	Model         string
	PromptVersion string
	K             int
	R             int
	Fingerprints  []string
	Center        string
	Trim          float64
	Bootstrap     int
}

// #endregion input

// #region derive
// Derive hashes the canonical pipe-delimited form of in with SHA-256 and
// returns the first 8 bytes as a big-endian uint64. Fingerprints are sorted
// and deduplicated first, so collection order never affects the seed.
func Derive(in Input) uint64 {
	sum := sha256.Sum256([]byte(Canonical(in)))
	return binary.BigEndian.Uint64(sum[:8])
}

// Canonical builds the string that Derive hashes.
func Canonical(in Input) string {
	fps := slices.Clone(in.Fingerprints)
	slices.Sort(fps)
	fps = slices.Compact(fps)

	fields := []string{
		in.Claim,
		in.Model,
		in.PromptVersion,
		strconv.Itoa(in.K),
		strconv.Itoa(in.R),
		strings.Join(fps, ","),
		in.Center,
		strconv.FormatFloat(in.Trim, 'g', -1, 64),
		strconv.Itoa(in.Bootstrap),
	}
	return strings.Join(fields, "|")
}

// #endregion derive
