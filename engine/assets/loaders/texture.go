package loaders

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	_ "golang.org/x/image/bmp"
)

// TextureParams optionally resamples the image on load.
type TextureParams struct {
	Width  uint32
	Height uint32
}

type TextureLoader struct{}

func (tl *TextureLoader) Load(path string, params interface{}) (interface{}, error) {
	img, err := decodeImage(path)
	if err != nil {
		return nil, err
	}
	var width, height uint32
	if p, ok := params.(*TextureParams); ok && p != nil {
		width, height = p.Width, p.Height
	}
	return toImage(filepath.Base(path), img, width, height), nil
}

func decodeImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	if b := img.Bounds(); b.Empty() {
		return nil, errors.Newf("%s image %s is empty", format, path)
	}
	return img, nil
}
