package testutil

import (
	"fmt"
	"sync"
)

// IDSequence hands out predictable instance ids ("instance-0001",
// "instance-0002", ...) in place of the engine's UUIDv7 generator.
// Sequential ids keep markers and golden files readable and stable
// across runs.
//
// Thread-safe; the counter never resets within one sequence.
type IDSequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewIDSequence creates a sequence with the given prefix. An empty
// prefix defaults to "instance".
func NewIDSequence(prefix string) *IDSequence {
	if prefix == "" {
		prefix = "instance"
	}
	return &IDSequence{prefix: prefix}
}

// Next returns the next id in the sequence. The error is always nil;
// the signature matches the engine's id-generator dependency.
func (s *IDSequence) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%04d", s.prefix, s.n), nil
}
