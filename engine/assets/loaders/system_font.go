package loaders

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

// SystemFontParams selects the rasterization size of a TrueType or
// OpenType font.
type SystemFontParams struct {
	Size float64
	DPI  float64
}

type SystemFontLoader struct{}

// Load parses the first face of a font file or collection and returns it as
// a font.Face at the requested size.
func (fl *SystemFontLoader) Load(path string, params interface{}) (interface{}, error) {
	fontBytes, err := readBinary(path)
	if err != nil {
		return nil, err
	}
	p := SystemFontParams{Size: 16, DPI: 72}
	if sp, ok := params.(*SystemFontParams); ok && sp != nil {
		if sp.Size > 0 {
			p.Size = sp.Size
		}
		if sp.DPI > 0 {
			p.DPI = sp.DPI
		}
	}

	collection, err := opentype.ParseCollection(fontBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if collection.NumFonts() == 0 {
		return nil, errors.Newf("%s contains no fonts", path)
	}
	f, err := collection.Font(0)
	if err != nil {
		return nil, errors.Wrapf(err, "%s face 0", path)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    p.Size,
		DPI:     p.DPI,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s at %.0fpt", path, p.Size)
	}
	return face, nil
}
