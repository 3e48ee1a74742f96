package loaders

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

const spirvMagic uint32 = 0x07230203

// Resource is a file loaded from disk together with its decoded form.
type Resource struct {
	Name     string
	FullPath string
	DataSize uint64
	Data     []byte
	// Code holds the SPIR-V words for shader resources.
	Code []uint32
}

var ErrNotSpirv = errors.New("not a SPIR-V module")

type SpirvLoader struct{}

func (sl *SpirvLoader) Load(path string) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading shader %s", path)
	}
	code, err := DecodeSpirv(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding shader %s", path)
	}
	return &Resource{
		Name:     filepath.Base(path),
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     data,
		Code:     code,
	}, nil
}

// DecodeSpirv converts a little endian SPIR-V binary to words. The module
// must be word aligned and start with the SPIR-V magic number.
func DecodeSpirv(b []byte) ([]uint32, error) {
	if len(b) < 4 || len(b)%4 != 0 {
		return nil, errors.Wrapf(ErrNotSpirv, "size %d is not a multiple of 4", len(b))
	}
	code := bytesToBytecode(b)
	if code[0] != spirvMagic {
		return nil, errors.Wrapf(ErrNotSpirv, "bad magic %#08x", code[0])
	}
	return code, nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return byteCode
}
