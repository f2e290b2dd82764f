package gitdiff_test

import (
	"testing"

	"github.com/fwojciec/diffset"
	"github.com/fwojciec/diffset/gitdiff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// literalSection replaces a file with "hello\n".
const literalSection = `diff --git a/greeting.bin b/greeting.bin
index 1111111..2222222 100644
GIT binary patch
literal 6
Nc$~{f&B@8<0ssh00v` + "`" + `YX

literal 0
Hc$@<O00001

`

func TestBinaryCodec_DecodeBinary_Literal(t *testing.T) {
	t.Parallel()

	c := gitdiff.NewBinaryCodec()

	bp, err := c.DecodeBinary([]byte(literalSection))

	require.NoError(t, err)
	require.NotNil(t, bp)
	assert.Equal(t, diffset.BinaryLiteral, bp.Method)
	assert.Equal(t, int64(6), bp.Size)
	assert.Equal(t, []byte("hello\n"), bp.Data)
	require.NotNil(t, bp.Reverse)
	assert.Equal(t, int64(0), bp.Reverse.Size)
}

func TestBinaryCodec_DecodeBinary_MarkerOnly(t *testing.T) {
	t.Parallel()

	section := `diff --git a/logo.png b/logo.png
index 1111111..2222222 100644
Binary files a/logo.png and b/logo.png differ
`

	c := gitdiff.NewBinaryCodec()

	bp, err := c.DecodeBinary([]byte(section))

	require.NoError(t, err)
	assert.Nil(t, bp)
}

func TestBinaryCodec_ApplyBinary_Literal(t *testing.T) {
	t.Parallel()

	c := gitdiff.NewBinaryCodec()
	bp, err := c.DecodeBinary([]byte(literalSection))
	require.NoError(t, err)

	out, err := c.ApplyBinary(nil, bp)

	require.NoError(t, err)
	assert.Equal(t, []byte("hello\n"), out)
}

func TestBinaryCodec_ApplyBinary_NilPatch(t *testing.T) {
	t.Parallel()

	c := gitdiff.NewBinaryCodec()

	_, err := c.ApplyBinary([]byte("x"), nil)

	require.ErrorIs(t, err, diffset.ErrBinaryUnsupported)
}
