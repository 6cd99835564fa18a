// Package fingerprint computes canonical content digests over a build unit's
// resolved input file set. Digests are a pure function of file bytes, never of
// metadata, so they are reproducible across machines and checkouts.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"git.home.luguber.info/inful/shipwright/internal/errors"
)

// fileHashWidth is the hex prefix kept per file. Truncation keeps the
// serialized hash list compact; it must never change between runs or every
// persisted fingerprint would be invalidated at once.
const fileHashWidth = 16

// Compute hashes each file's raw bytes, canonicalizes the set by sorting the
// paths, and digests the JSON-serialized list of per-file hashes. Identical
// contents and membership yield an identical digest regardless of input order.
func Compute(paths []string) (string, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	hashes := make([]string, 0, len(sorted))
	for _, p := range sorted {
		h, err := hashFile(p)
		if err != nil {
			return "", err
		}
		hashes = append(hashes, h)
	}

	serialized, err := json.Marshal(hashes)
	if err != nil {
		return "", fmt.Errorf("serialize file hashes: %w", err)
	}

	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:]), nil
}

// hashFile digests one input's raw bytes. An unreadable input is an
// InputRead error for the unit, never silently treated as absent.
func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.InputRead(path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:fileHashWidth], nil
}

// HashBytes digests arbitrary bytes the same way artifact versions are
// derived: sha256, hex, truncated.
func HashBytes(data []byte, width int) string {
	sum := sha256.Sum256(data)
	h := hex.EncodeToString(sum[:])
	if width > 0 && width < len(h) {
		return h[:width]
	}
	return h
}
