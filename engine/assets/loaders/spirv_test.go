package loaders

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestDecodeSpirv(t *testing.T) {
	code, err := DecodeSpirv([]byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00})
	require.NoError(t, err)
	require.Equal(t, []uint32{spirvMagic, 0x00010000}, code)

	_, err = DecodeSpirv([]byte{0x03, 0x02, 0x23})
	require.True(t, errors.Is(err, ErrNotSpirv))

	_, err = DecodeSpirv([]byte{0, 0, 0, 0})
	require.True(t, errors.Is(err, ErrNotSpirv))
}

func TestSpirvLoaderLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "basic.vert.spv")
	require.NoError(t, os.WriteFile(path, []byte{0x03, 0x02, 0x23, 0x07}, 0o644))

	res, err := (&SpirvLoader{}).Load(path)
	require.NoError(t, err)
	require.Equal(t, "basic.vert.spv", res.Name)
	require.Equal(t, uint64(4), res.DataSize)
	require.Len(t, res.Code, 1)

	_, err = (&SpirvLoader{}).Load(filepath.Join(t.TempDir(), "missing.spv"))
	require.Error(t, err)
}
