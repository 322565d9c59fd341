package overlay

import (
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
)

// Control is a rectangular 2D element of the overlay, positioned in pixels
// from the top-left corner of the window.
type Control interface {
	Visible() bool
	SetVisible(v bool)
	// HitTest reports whether the pixel (x, y) lies inside the control.
	HitTest(x, y int) bool
	Element() metadata.OverlayElement
}

type control struct {
	x, y          int
	width, height int
	visible       bool
}

func (c *control) Visible() bool     { return c.visible }
func (c *control) SetVisible(v bool) { c.visible = v }

func (c *control) HitTest(x, y int) bool {
	return x >= c.x && x < c.x+c.width &&
		y >= c.y && y < c.y+c.height
}

// Bounds returns the position and size of the control.
func (c *control) Bounds() (int, int, int, int) {
	return c.x, c.y, c.width, c.height
}

// Text is a run of characters drawn with the GUI font. Its size follows the
// text.
type Text struct {
	control
	font  *Font
	text  string
	quads []metadata.Quad
}

func (t *Text) Text() string { return t.text }

// SetText replaces the text and recomputes the size and glyph quads.
func (t *Text) SetText(text string) {
	if text == t.text && t.quads != nil {
		return
	}
	t.text = text
	t.width, t.height = t.font.Measure(text)
	t.quads = t.font.AppendQuads(t.quads[:0], text, float32(t.x), float32(t.y))
}

func (t *Text) Element() metadata.OverlayElement {
	return metadata.OverlayElement{Visible: t.visible, Quads: t.quads}
}

// Sprite draws a whole texture stretched over its rectangle.
type Sprite struct {
	control
	texture string
}

func (s *Sprite) Texture() string { return s.texture }

// SetTexture swaps the image shown by the sprite. The texture must be one
// the renderer was created with.
func (s *Sprite) SetTexture(name string) { s.texture = name }

func (s *Sprite) Element() metadata.OverlayElement {
	return metadata.OverlayElement{
		Visible: s.visible,
		Texture: s.texture,
		Quads: []metadata.Quad{{
			X: float32(s.x), Y: float32(s.y),
			W: float32(s.width), H: float32(s.height),
			U0: 0, V0: 0, U1: 1, V1: 1,
		}},
	}
}

// GUI owns the overlay controls in drawing order.
type GUI struct {
	font     *Font
	controls []Control
}

func New(font *Font) *GUI {
	if font == nil {
		font = DefaultFont()
	}
	return &GUI{font: font}
}

func (g *GUI) Font() *Font { return g.font }

func (g *GUI) AddText(x, y int, text string) *Text {
	t := &Text{control: control{x: x, y: y, visible: true}, font: g.font}
	t.SetText(text)
	g.controls = append(g.controls, t)
	return t
}

func (g *GUI) AddSprite(x, y, width, height int, texture string) *Sprite {
	s := &Sprite{
		control: control{x: x, y: y, width: width, height: height, visible: true},
		texture: texture,
	}
	g.controls = append(g.controls, s)
	return s
}

// HitTest returns the topmost visible control under (x, y), or nil.
func (g *GUI) HitTest(x, y int) Control {
	for i := len(g.controls) - 1; i >= 0; i-- {
		c := g.controls[i]
		if c.Visible() && c.HitTest(x, y) {
			return c
		}
	}
	return nil
}

// Elements returns the overlay of the frame. Hidden controls are kept so the
// element count stays stable.
func (g *GUI) Elements() []metadata.OverlayElement {
	out := make([]metadata.OverlayElement, 0, len(g.controls))
	for _, c := range g.controls {
		out = append(out, c.Element())
	}
	return out
}

// Textures lists the sprite textures the GUI references, once each.
func (g *GUI) Textures() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range g.controls {
		s, ok := c.(*Sprite)
		if !ok || seen[s.texture] {
			continue
		}
		seen[s.texture] = true
		out = append(out, s.texture)
	}
	return out
}
