package loaders

import (
	"github.com/cockroachdb/errors"
)

const spirvMagic = 0x07230203

type ShaderLoader struct{}

// Load reads a SPIR-V module. The bytes are returned as they are on disk
// after the header was checked.
func (sl *ShaderLoader) Load(path string, params interface{}) (interface{}, error) {
	data, err := readBinary(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateSPIRV(data); err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return data, nil
}

// ValidateSPIRV checks the word alignment and magic number of a module.
func ValidateSPIRV(data []byte) error {
	if len(data) < 20 || len(data)%4 != 0 {
		return errors.Newf("not a SPIR-V module: %d bytes", len(data))
	}
	header := bytesToBytecode(data[:20])
	if header[0] != spirvMagic {
		return errors.Newf("not a SPIR-V module: magic %#08x", header[0])
	}
	return nil
}
