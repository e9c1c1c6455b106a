// Package canon computes the canonical forms the ledger compares:
// domain-tagged content digests and canonical JSON snapshots.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Domain prefixes for content digests. The version suffix enables future
// algorithm migration: a digest is only comparable within one domain
// version.
const (
	DomainBlock = "reposync/block/v1"
	DomainFile  = "reposync/file/v1"
	DomainArgs  = "reposync/args/v1"
)

// digestAlgorithm tags every digest with the hash that produced it, so a
// ledger written by a newer algorithm is detected instead of misread.
const digestAlgorithm = "sha256"

// Digest computes the tagged content digest of data within a domain.
// Format: "sha256:" + hex(SHA-256(domain + 0x00 + data)).
// The null separator prevents domain/data boundary ambiguity.
func Digest(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return digestAlgorithm + ":" + hex.EncodeToString(h.Sum(nil))
}

// Algorithm extracts the algorithm tag from a digest string.
func Algorithm(digest string) string {
	algo, _, ok := strings.Cut(digest, ":")
	if !ok {
		return ""
	}
	return algo
}

// ValidDigest reports whether s is a well-formed digest this version can
// compare against.
func ValidDigest(s string) bool {
	algo, hexPart, ok := strings.Cut(s, ":")
	if !ok || algo != digestAlgorithm || len(hexPart) != 64 {
		return false
	}
	_, err := hex.DecodeString(hexPart)
	return err == nil
}

// ArgsSnapshot serializes rendering inputs to their canonical JSON form.
// Snapshot equality is the "would this intent regenerate identically"
// test, so the serialization must be deterministic across runs, platforms
// and map iteration orders.
func ArgsSnapshot(args map[string]any) (string, error) {
	data, err := MarshalCanonical(args)
	if err != nil {
		return "", fmt.Errorf("args snapshot: %w", err)
	}
	return string(data), nil
}

// MustArgsSnapshot is like ArgsSnapshot but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustArgsSnapshot(args map[string]any) string {
	s, err := ArgsSnapshot(args)
	if err != nil {
		panic(err)
	}
	return s
}
