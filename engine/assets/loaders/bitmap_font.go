package loaders

import (
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fzipp/bmfont"
)

type FontGlyph struct {
	Codepoint rune
	X         uint16
	Y         uint16
	Width     uint16
	Height    uint16
	XOffset   int16
	YOffset   int16
	XAdvance  int16
	PageID    uint8
}

type FontKerning struct {
	Codepoint0 rune
	Codepoint1 rune
	Amount     int16
}

// BitmapFont is an AngelCode BMFont with its first page decoded as the
// atlas. Glyph rectangles are in atlas pixels.
type BitmapFont struct {
	Face       string
	Size       uint32
	LineHeight int32
	Baseline   int32
	AtlasSizeX int32
	AtlasSizeY int32
	Glyphs     []FontGlyph
	Kernings   []FontKerning
	Pages      []string
	Atlas      *Image
}

type BitmapFontLoader struct{}

func (fl *BitmapFontLoader) Load(path string, params interface{}) (interface{}, error) {
	font, err := fl.importFNTFile(path)
	if err != nil {
		return nil, err
	}
	if len(font.Pages) != 1 {
		return nil, errors.Newf("%s: %d pages, only single page fonts are supported", path, len(font.Pages))
	}
	// page files are relative to the descriptor
	img, err := decodeImage(filepath.Join(filepath.Dir(path), font.Pages[0]))
	if err != nil {
		return nil, err
	}
	font.Atlas = toImage(font.Face, img, 0, 0)
	font.AtlasSizeX, font.AtlasSizeY = int32(font.Atlas.Width), int32(font.Atlas.Height)
	return font, nil
}

func (fl *BitmapFontLoader) importFNTFile(fntFileName string) (*BitmapFont, error) {
	font, err := bmfont.Load(fntFileName)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", fntFileName)
	}

	outData := &BitmapFont{
		Face:       font.Descriptor.Info.Face,
		Size:       uint32(font.Descriptor.Info.Size),
		LineHeight: int32(font.Descriptor.Common.LineHeight),
		Baseline:   int32(font.Descriptor.Common.Base),
		AtlasSizeX: int32(font.Descriptor.Common.ScaleW),
		AtlasSizeY: int32(font.Descriptor.Common.ScaleH),
		Glyphs:     make([]FontGlyph, 0, len(font.Descriptor.Chars)),
		Kernings:   make([]FontKerning, 0, len(font.Descriptor.Kerning)),
		Pages:      make([]string, len(font.Descriptor.Pages)),
	}

	for _, p := range font.Descriptor.Pages {
		id := int(p.ID)
		if id < 0 || id >= len(outData.Pages) {
			return nil, errors.Newf("%s: page id %d out of range", fntFileName, id)
		}
		outData.Pages[id] = p.File
	}

	for _, g := range font.Descriptor.Chars {
		outData.Glyphs = append(outData.Glyphs, FontGlyph{
			Codepoint: rune(g.ID),
			X:         uint16(g.X),
			Y:         uint16(g.Y),
			Width:     uint16(g.Width),
			Height:    uint16(g.Height),
			XOffset:   int16(g.XOffset),
			YOffset:   int16(g.YOffset),
			XAdvance:  int16(g.XAdvance),
			PageID:    uint8(g.Page),
		})
	}

	for p, k := range font.Descriptor.Kerning {
		outData.Kernings = append(outData.Kernings, FontKerning{
			Codepoint0: rune(p.First),
			Codepoint1: rune(p.Second),
			Amount:     int16(k.Amount),
		})
	}

	return outData, nil
}
