package overlay

import (
	"fmt"
	"image"
	"image/draw"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/time/rate"

	"github.com/banshee-data/sensor.display/internal/monitoring"
)

const faceErrorInterval = 5 * time.Second

// FontDrawer draws text with the Go Regular font. Faces are built lazily per
// scale and cached.
type FontDrawer struct {
	font *opentype.Font
	size float64
	log  monitoring.Source

	// newFace builds a face at the given point size.
	newFace func(size float64) (font.Face, error)

	mu     sync.Mutex
	faces  map[float64]font.Face
	errLog rate.Sometimes
}

// NewFontDrawer parses the embedded font. size is the point size at scale 1
// (72 DPI, so points equal pixels).
func NewFontDrawer(size float64) (*FontDrawer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("font size must be positive, got %v", size)
	}
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	d := &FontDrawer{
		font:   f,
		size:   size,
		log:    monitoring.For("Overlay"),
		faces:  make(map[float64]font.Face),
		errLog: rate.Sometimes{First: 1, Interval: faceErrorInterval},
	}
	d.newFace = d.openFace
	return d, nil
}

func (d *FontDrawer) openFace(size float64) (font.Face, error) {
	return opentype.NewFace(d.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

func (d *FontDrawer) face(scale float64) (font.Face, error) {
	if scale <= 0 {
		scale = 1
	}
	if f, ok := d.faces[scale]; ok {
		return f, nil
	}
	f, err := d.newFace(d.size * scale)
	if err != nil {
		return nil, err
	}
	d.faces[scale] = f
	return f, nil
}

// DrawText draws text with its baseline at origin. Thickness is emulated by
// redrawing the glyphs offset by up to Thickness-1 pixels right and down.
// If no face can be built for the scale the text is skipped and the failure
// logged.
func (d *FontDrawer) DrawText(dst draw.Image, text string, origin image.Point, style TextStyle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	face, err := d.face(style.Scale)
	if err != nil {
		d.errLog.Do(func() {
			d.log.Errorf("Failed to build font face at scale %v: %v", style.Scale, err)
		})
		return
	}
	thickness := style.Thickness
	if thickness < 1 {
		thickness = 1
	}

	dr := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(style.Color),
		Face: face,
	}
	for dy := 0; dy < thickness; dy++ {
		for dx := 0; dx < thickness; dx++ {
			dr.Dot = fixed.P(origin.X+dx, origin.Y+dy)
			dr.DrawString(text)
		}
	}
}

// Close releases the cached faces.
func (d *FontDrawer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for scale, f := range d.faces {
		f.Close()
		delete(d.faces, scale)
	}
	return nil
}
