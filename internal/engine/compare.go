package engine

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
)

// Class classifies the relationship between a source block and the
// destination block at the same index.
type Class int

const (
	// Identical means the destination block already matches the source.
	Identical Class = iota
	// Differing means the destination block must be rewritten.
	Differing
	// SourceShort means the source read returned fewer bytes than expected.
	SourceShort
	// DestinationShort means the destination read returned fewer bytes than
	// expected (end-of-device truncation, or the growth extension region).
	DestinationShort
)

func (c Class) String() string {
	switch c {
	case Identical:
		return "identical"
	case Differing:
		return "differing"
	case SourceShort:
		return "source-short"
	case DestinationShort:
		return "destination-short"
	default:
		return "unknown"
	}
}

// Outcome is the result of comparing one block. N carries the actual byte
// count obtained for the short-read classes.
type Outcome struct {
	Class Class
	N     int
}

// Differs reports whether the outcome requires a write. Short reads always
// differ: the engine conservatively rewrites the tail rather than guessing
// that mismatched lengths are "the same".
func (o Outcome) Differs() bool {
	return o.Class != Identical
}

// Comparator decides block equality. It is a pure function of its inputs.
type Comparator struct {
	// Digest compares 64-bit content digests before falling back to a
	// byte-for-byte comparison. Only worthwhile for very large blocks; the
	// default is a plain bytes.Equal, since digests cannot be cached across
	// runs (destination content is untrusted ahead of time).
	Digest bool
}

// Compare classifies src against dst, where want is the expected byte count
// for this block. src and dst carry the bytes actually read.
func (c Comparator) Compare(src, dst []byte, want int) Outcome {
	if len(src) < want {
		return Outcome{Class: SourceShort, N: len(src)}
	}
	if len(dst) < want {
		return Outcome{Class: DestinationShort, N: len(dst)}
	}

	src = src[:want]
	dst = dst[:want]

	if c.Digest {
		if xxhash.Sum64(src) != xxhash.Sum64(dst) {
			return Outcome{Class: Differing, N: want}
		}
		// Digest collision is possible; confirm byte-for-byte before
		// declaring the block identical.
	}

	if bytes.Equal(src, dst) {
		return Outcome{Class: Identical, N: want}
	}
	return Outcome{Class: Differing, N: want}
}
