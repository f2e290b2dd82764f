package gitdiff

import (
	"bytes"
	"fmt"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/fwojciec/diffset"
)

// Compile-time interface verification.
var (
	_ diffset.BinaryDecoder = (*BinaryCodec)(nil)
	_ diffset.BinaryApplier = (*BinaryCodec)(nil)
)

// BinaryCodec decodes and applies "GIT binary patch" data.
type BinaryCodec struct{}

// NewBinaryCodec creates a new BinaryCodec.
func NewBinaryCodec() *BinaryCodec {
	return &BinaryCodec{}
}

// DecodeBinary decodes the binary fragments of a single git file section.
// It returns nil when the section carries no patch data.
func (c *BinaryCodec) DecodeBinary(section []byte) (*diffset.BinaryPatch, error) {
	files, _, err := gitdiff.Parse(bytes.NewReader(section))
	if err != nil {
		return nil, err
	}
	if len(files) != 1 {
		return nil, fmt.Errorf("expected one file section, got %d", len(files))
	}
	f := files[0]
	if f.BinaryFragment == nil {
		return nil, nil
	}
	return convertBinary(f.BinaryFragment, f.ReverseBinaryFragment), nil
}

// ApplyBinary applies patch to original. Literal patches replace the
// content; delta patches are applied against it.
func (c *BinaryCodec) ApplyBinary(original []byte, patch *diffset.BinaryPatch) ([]byte, error) {
	if patch == nil {
		return nil, diffset.ErrBinaryUnsupported
	}

	file := &gitdiff.File{
		IsBinary:       true,
		BinaryFragment: toFragment(patch),
	}

	var out bytes.Buffer
	if err := gitdiff.Apply(&out, bytes.NewReader(original), file); err != nil {
		return nil, fmt.Errorf("%w: %v", diffset.ErrHunkMismatch, err)
	}
	return out.Bytes(), nil
}

func convertBinary(forward, reverse *gitdiff.BinaryFragment) *diffset.BinaryPatch {
	bp := fromFragment(forward)
	if reverse != nil {
		bp.Reverse = fromFragment(reverse)
	}
	return bp
}

func fromFragment(frag *gitdiff.BinaryFragment) *diffset.BinaryPatch {
	method := diffset.BinaryLiteral
	if frag.Method == gitdiff.BinaryPatchDelta {
		method = diffset.BinaryDelta
	}
	return &diffset.BinaryPatch{
		Method: method,
		Size:   frag.Size,
		Data:   frag.Data,
	}
}

func toFragment(bp *diffset.BinaryPatch) *gitdiff.BinaryFragment {
	method := gitdiff.BinaryPatchLiteral
	if bp.Method == diffset.BinaryDelta {
		method = gitdiff.BinaryPatchDelta
	}
	return &gitdiff.BinaryFragment{
		Method: method,
		Size:   bp.Size,
		Data:   bp.Data,
	}
}
