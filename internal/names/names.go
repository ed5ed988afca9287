// Package names implements the fixed-width, NUL-padded ASCII name
// encoding used throughout the wire layout (spec.md §6): 80 bytes for
// modules, pipelines, devices and agents; 64 bytes for counters.
package names

import (
	"fmt"
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/yanet-platform/yanet2go/internal/xerrors"
)

// StandardWidth is the fixed width for module, pipeline, device and
// agent names.
const StandardWidth = 80

// CounterWidth is the fixed width for counter names.
const CounterWidth = 64

// asciiOnly strips every rune outside the printable ASCII range before
// a name is encoded onto the wire, so a caller that accidentally passes
// UTF-8 gets a clear, truncated-but-valid name rather than a partially
// corrupted fixed-width field.
var asciiOnly = transform.Chain(
	runes.Remove(runes.Predicate(func(r rune) bool {
		return r < 0x20 || r > 0x7e
	})),
)

// Sanitize removes non-ASCII runes from name via the same
// transform/runes pipeline the wider Go ecosystem uses for charset
// filtering.
func Sanitize(name string) string {
	out, _, err := transform.String(asciiOnly, name)
	if err != nil {
		return name
	}
	return out
}

// Encode validates and right-pads name with NUL bytes to width. It
// fails if name is empty or does not fit in width-1 bytes (the last
// byte is always reserved as a terminator guarantee).
func Encode(name string, width int) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("encode name: %w", xerrors.ErrInvalidArgument)
	}
	clean := Sanitize(name)
	if len(clean) > width-1 {
		return nil, fmt.Errorf("encode name %q: exceeds %d bytes: %w", name, width-1, xerrors.ErrInvalidArgument)
	}

	buf := make([]byte, width)
	copy(buf, clean)
	return buf, nil
}

// Decode reads a NUL-padded fixed-width field back into a string.
func Decode(field []byte) string {
	if i := strings.IndexByte(string(field), 0); i >= 0 {
		return string(field[:i])
	}
	return string(field)
}
