// Package rng threads reproducible randomness through the pipeline.
//
// A Stream is an immutable (seed, path) pair. Every stochastic step derives
// its own child stream by label, e.g. root.Derive("forest").Derive("tree", 17),
// and draws from a fresh generator seeded from the hash of the path. Two
// steps never share a generator, so parallel workers stay independent and a
// whole run is reproducible from the root seed alone.
package rng

import (
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Stream is a deterministic, splittable source of random generators.
type Stream struct {
	seed uint64
	path string
}

// New returns the root stream for a run.
func New(seed uint64) Stream {
	return Stream{seed: seed}
}

// Derive returns the child stream named by label and optional indices.
// Deriving the same label twice yields the same stream.
func (s Stream) Derive(label string, idx ...int) Stream {
	var b strings.Builder
	b.WriteString(s.path)
	b.WriteByte('/')
	b.WriteString(label)
	for _, i := range idx {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(i))
	}
	return Stream{seed: s.seed, path: b.String()}
}

// Seed returns the root seed the stream was created from.
func (s Stream) Seed() uint64 {
	return s.seed
}

// Path returns the derivation path, useful in log fields.
func (s Stream) Path() string {
	if s.path == "" {
		return "/"
	}
	return s.path
}

// Rand returns a new generator positioned at the start of this stream.
// Each call returns an independent generator with identical output.
func (s Stream) Rand() *rand.Rand {
	return rand.New(rand.NewPCG(s.seed, xxhash.Sum64String(s.path)))
}

// Perm returns a uniform random permutation of [0, n) drawn from this stream.
func (s Stream) Perm(n int) []int {
	return s.Rand().Perm(n)
}
