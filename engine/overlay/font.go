package overlay

import (
	"image"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/asteroids/engine/assets/loaders"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// FontTextureName is the texture name the font atlas is uploaded under.
const FontTextureName = "font"

// Glyph is a character cell of the atlas, in pixels. Offsets are relative
// to the pen position at the top of the line.
type Glyph struct {
	X, Y, W, H       int
	XOffset, YOffset int
	XAdvance         int
}

// Font is a single page glyph atlas. The atlas is white with the glyph
// coverage in alpha.
type Font struct {
	name       string
	atlas      *loaders.Image
	glyphs     map[rune]Glyph
	kerning    map[[2]rune]int
	lineHeight int
}

// NewBitmapFont builds a font from a BMFont descriptor and its page.
func NewBitmapFont(bf *loaders.BitmapFont) (*Font, error) {
	if bf.Atlas == nil || bf.Atlas.Width == 0 || bf.Atlas.Height == 0 {
		return nil, errors.Newf("bitmap font %q has no atlas", bf.Face)
	}
	f := &Font{
		name:       bf.Face,
		atlas:      coverageAtlas(bf.Atlas),
		glyphs:     make(map[rune]Glyph, len(bf.Glyphs)),
		kerning:    make(map[[2]rune]int, len(bf.Kernings)),
		lineHeight: int(bf.LineHeight),
	}
	for _, g := range bf.Glyphs {
		if g.PageID != 0 {
			continue
		}
		f.glyphs[g.Codepoint] = Glyph{
			X:        int(g.X),
			Y:        int(g.Y),
			W:        int(g.Width),
			H:        int(g.Height),
			XOffset:  int(g.XOffset),
			YOffset:  int(g.YOffset),
			XAdvance: int(g.XAdvance),
		}
	}
	for _, k := range bf.Kernings {
		f.kerning[[2]rune{k.Codepoint0, k.Codepoint1}] = int(k.Amount)
	}
	return f, nil
}

// coverageAtlas turns white-on-transparent and white-on-black pages alike
// into white with coverage in alpha.
func coverageAtlas(src *loaders.Image) *loaders.Image {
	out := &loaders.Image{
		Name:   FontTextureName,
		Width:  src.Width,
		Height: src.Height,
		Pixels: make([]byte, len(src.Pixels)),
	}
	for i := 0; i+3 < len(src.Pixels); i += 4 {
		r, a := uint32(src.Pixels[i]), uint32(src.Pixels[i+3])
		out.Pixels[i], out.Pixels[i+1], out.Pixels[i+2] = 255, 255, 255
		out.Pixels[i+3] = byte(r * a / 255)
	}
	return out
}

const (
	firstPrintable = ' '
	lastPrintable  = '~'
	atlasWidth     = 256
	glyphPadding   = 1
)

// NewFaceFont rasterizes the printable ASCII range of face into an atlas.
func NewFaceFont(name string, face font.Face) *Font {
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	lineHeight := metrics.Height.Ceil()
	if h := ascent + metrics.Descent.Ceil(); h > lineHeight {
		lineHeight = h
	}

	type placed struct {
		r     rune
		dot   fixed.Point26_6
		penX  int
		penY  int
		adv   int
		empty bool
	}
	var cells []placed
	x, y := glyphPadding, glyphPadding
	for r := rune(firstPrintable); r <= lastPrintable; r++ {
		bounds, adv, ok := face.GlyphBounds(r)
		if !ok {
			continue
		}
		minX, maxX := bounds.Min.X.Floor(), bounds.Max.X.Ceil()
		w := maxX - minX
		if x+w+glyphPadding > atlasWidth {
			x = glyphPadding
			y += lineHeight + glyphPadding
		}
		// the glyph's left edge lands on x
		penX := x - minX
		cells = append(cells, placed{
			r:     r,
			dot:   fixed.P(penX, y+ascent),
			penX:  penX,
			penY:  y,
			adv:   adv.Round(),
			empty: w <= 0,
		})
		x += w + glyphPadding
	}
	height := y + lineHeight + glyphPadding

	atlas := image.NewRGBA(image.Rect(0, 0, atlasWidth, height))
	f := &Font{
		name:       name,
		glyphs:     make(map[rune]Glyph, len(cells)),
		kerning:    map[[2]rune]int{},
		lineHeight: lineHeight,
	}
	for _, c := range cells {
		g := Glyph{XAdvance: c.adv}
		if !c.empty {
			dr, mask, maskp, _, ok := face.Glyph(c.dot, c.r)
			if ok {
				clipped := dr.Intersect(atlas.Bounds())
				maskp = maskp.Add(clipped.Min.Sub(dr.Min))
				dr = clipped
				draw.DrawMask(atlas, dr, image.White, image.Point{}, mask, maskp, draw.Over)
				g.X, g.Y, g.W, g.H = dr.Min.X, dr.Min.Y, dr.Dx(), dr.Dy()
				g.XOffset, g.YOffset = dr.Min.X-c.penX, dr.Min.Y-c.penY
			}
		}
		f.glyphs[c.r] = g
	}
	img := loaders.FromRGBA(FontTextureName, atlas)
	f.atlas = coverageFromPremultiplied(img)
	return f
}

func coverageFromPremultiplied(img *loaders.Image) *loaders.Image {
	for i := 0; i+3 < len(img.Pixels); i += 4 {
		img.Pixels[i], img.Pixels[i+1], img.Pixels[i+2] = 255, 255, 255
	}
	return img
}

// DefaultFont is the built-in 7x13 fixed font, used when no font asset is
// configured.
func DefaultFont() *Font {
	return NewFaceFont("basicfont 7x13", basicfont.Face7x13)
}

func (f *Font) Name() string          { return f.name }
func (f *Font) Atlas() *loaders.Image { return f.atlas }
func (f *Font) LineHeight() int       { return f.lineHeight }

func (f *Font) Glyph(r rune) (Glyph, bool) {
	g, ok := f.glyphs[r]
	return g, ok
}

func (f *Font) lookup(r rune) (Glyph, bool) {
	if g, ok := f.glyphs[r]; ok {
		return g, true
	}
	g, ok := f.glyphs['?']
	return g, ok
}

// Measure returns the size of the text block in pixels.
func (f *Font) Measure(text string) (int, int) {
	if text == "" {
		return 0, 0
	}
	width, lineWidth, lines := 0, 0, 1
	prev := rune(-1)
	for _, r := range text {
		if r == '\n' {
			lines++
			lineWidth, prev = 0, -1
			continue
		}
		g, ok := f.lookup(r)
		if !ok {
			continue
		}
		lineWidth += g.XAdvance + f.kerning[[2]rune{prev, r}]
		if lineWidth > width {
			width = lineWidth
		}
		prev = r
	}
	return width, lines * f.lineHeight
}

// AppendQuads lays out text with its top-left corner at (x, y).
func (f *Font) AppendQuads(out []metadata.Quad, text string, x, y float32) []metadata.Quad {
	aw, ah := float32(f.atlas.Width), float32(f.atlas.Height)
	penX, penY := x, y
	prev := rune(-1)
	for _, r := range text {
		if r == '\n' {
			penX, penY = x, penY+float32(f.lineHeight)
			prev = -1
			continue
		}
		g, ok := f.lookup(r)
		if !ok {
			continue
		}
		penX += float32(f.kerning[[2]rune{prev, r}])
		if g.W > 0 && g.H > 0 {
			out = append(out, metadata.Quad{
				X:  penX + float32(g.XOffset),
				Y:  penY + float32(g.YOffset),
				W:  float32(g.W),
				H:  float32(g.H),
				U0: float32(g.X) / aw,
				V0: float32(g.Y) / ah,
				U1: float32(g.X+g.W) / aw,
				V1: float32(g.Y+g.H) / ah,
			})
		}
		penX += float32(g.XAdvance)
		prev = r
	}
	return out
}
