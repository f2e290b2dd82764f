// Package mock provides test doubles for diffset interfaces.
package mock

import (
	"io"

	"github.com/fwojciec/diffset"
)

// Compile-time interface verification.
var (
	_ diffset.Parser        = (*Parser)(nil)
	_ diffset.BinaryDecoder = (*BinaryDecoder)(nil)
	_ diffset.BinaryApplier = (*BinaryApplier)(nil)
	_ diffset.Patcher       = (*Patcher)(nil)
	_ diffset.Formatter     = (*Formatter)(nil)
)

// Parser is a mock implementation of diffset.Parser.
type Parser struct {
	ParseFn func(data []byte, hint diffset.Dialect) (*diffset.DiffSet, error)
}

func (p *Parser) Parse(data []byte, hint diffset.Dialect) (*diffset.DiffSet, error) {
	return p.ParseFn(data, hint)
}

// BinaryDecoder is a mock implementation of diffset.BinaryDecoder.
type BinaryDecoder struct {
	DecodeBinaryFn func(section []byte) (*diffset.BinaryPatch, error)
}

func (d *BinaryDecoder) DecodeBinary(section []byte) (*diffset.BinaryPatch, error) {
	return d.DecodeBinaryFn(section)
}

// BinaryApplier is a mock implementation of diffset.BinaryApplier.
type BinaryApplier struct {
	ApplyBinaryFn func(original []byte, patch *diffset.BinaryPatch) ([]byte, error)
}

func (a *BinaryApplier) ApplyBinary(original []byte, patch *diffset.BinaryPatch) ([]byte, error) {
	return a.ApplyBinaryFn(original, patch)
}

// Patcher is a mock implementation of diffset.Patcher.
type Patcher struct {
	ApplyFn       func(original []byte, hunks []diffset.Hunk) ([]byte, error)
	ApplyBinaryFn func(original []byte, patch *diffset.BinaryPatch) ([]byte, error)
}

func (p *Patcher) Apply(original []byte, hunks []diffset.Hunk) ([]byte, error) {
	return p.ApplyFn(original, hunks)
}

func (p *Patcher) ApplyBinary(original []byte, patch *diffset.BinaryPatch) ([]byte, error) {
	return p.ApplyBinaryFn(original, patch)
}

// Formatter is a mock implementation of diffset.Formatter.
type Formatter struct {
	FormatFn func(w io.Writer, ds *diffset.DiffSet) error
}

func (f *Formatter) Format(w io.Writer, ds *diffset.DiffSet) error {
	return f.FormatFn(w, ds)
}
