package camera

import (
	"fmt"
	"image"
	"sync"
)

// SyntheticCapturer provides devices that render a moving test pattern. It
// stands in for real hardware in dev mode and tests.
type SyntheticCapturer struct {
	// Devices is the number of valid indices, 0..Devices-1.
	Devices int
}

// NewSyntheticCapturer returns a capturer with the given number of devices.
func NewSyntheticCapturer(devices int) *SyntheticCapturer {
	return &SyntheticCapturer{Devices: devices}
}

func (c *SyntheticCapturer) Open(index int) (Device, error) {
	if index < 0 || index >= c.Devices {
		return nil, fmt.Errorf("no synthetic device at index %d", index)
	}
	return &syntheticDevice{index: index}, nil
}

type syntheticDevice struct {
	mu       sync.Mutex
	index    int
	width    int
	height   int
	frame    int
	released bool
}

func (d *syntheticDevice) Configure(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("unsupported resolution %dx%d", width, height)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = width, height
	return nil
}

// ReadFrame renders diagonal colour bands that shift a few pixels per frame.
func (d *syntheticDevice) ReadFrame() (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, fmt.Errorf("device %d released", d.index)
	}
	if d.width == 0 {
		return nil, fmt.Errorf("device %d not configured", d.index)
	}

	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	shift := d.frame * 4
	for y := 0; y < d.height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+d.width*4]
		for x := 0; x < d.width; x++ {
			band := uint8((x + y + shift) & 0xff)
			i := x * 4
			row[i+0] = band
			row[i+1] = uint8(y * 255 / d.height)
			row[i+2] = 255 - band
			row[i+3] = 0xff
		}
	}
	d.frame++
	return img, nil
}

func (d *syntheticDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
	return nil
}
