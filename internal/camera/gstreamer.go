//go:build gstreamer

package camera

import (
	"fmt"
	"image"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

func init() {
	Register(BackendGStreamer, func() Capturer { return GStreamerCapturer{} })
}

// GStreamerCapturer opens V4L2 devices (/dev/videoN) through a GStreamer
// pipeline ending in an RGB appsink.
type GStreamerCapturer struct{}

func (GStreamerCapturer) Open(index int) (Device, error) {
	if index < 0 {
		return nil, fmt.Errorf("invalid device index %d", index)
	}
	gst.Init(nil)
	return &gstDevice{device: fmt.Sprintf("/dev/video%d", index)}, nil
}

// gstDevice builds its pipeline on Configure, once the resolution is known:
//
//	v4l2src → videoconvert → videoscale → capsfilter(RGB,WxH) → appsink
type gstDevice struct {
	device string

	mu       sync.Mutex
	pipeline *gst.Pipeline
	sink     *app.Sink
	width    int
	height   int
}

func (d *gstDevice) Configure(width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline != nil {
		return fmt.Errorf("%s already configured", d.device)
	}

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", d.device)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("failed to create videoconvert: %w", err)
	}
	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return fmt.Errorf("failed to create videoscale: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("failed to create capsfilter: %w", err)
	}
	caps := fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d", width, height)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(caps))

	sink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1) // keep only the latest frame
	sink.SetProperty("drop", true)

	pipeline.AddMany(src, converter, scaler, capsfilter, sink.Element)
	if err := gst.ElementLinkMany(src, converter, scaler, capsfilter, sink.Element); err != nil {
		return fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("failed to start %s: %w", d.device, err)
	}

	d.pipeline = pipeline
	d.sink = sink
	d.width, d.height = width, height
	return nil
}

// ReadFrame pulls one RGB sample and expands it to RGBA.
func (d *gstDevice) ReadFrame() (*image.RGBA, error) {
	d.mu.Lock()
	sink, width, height := d.sink, d.width, d.height
	d.mu.Unlock()
	if sink == nil {
		return nil, fmt.Errorf("%s not configured", d.device)
	}

	sample := sink.PullSample()
	if sample == nil {
		return nil, fmt.Errorf("%s: no sample (end of stream)", d.device)
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil, fmt.Errorf("%s: sample without buffer", d.device)
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	defer buffer.Unmap()
	stride, ok := rgbStride(width, height, len(data))
	if !ok {
		return nil, fmt.Errorf("%s: short buffer %d bytes for %dx%d", d.device, len(data), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	rgbToRGBA(img, data, stride)
	return img, nil
}

func (d *gstDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline == nil {
		return nil
	}
	err := d.pipeline.SetState(gst.StateNull)
	d.pipeline = nil
	d.sink = nil
	if err != nil {
		return fmt.Errorf("failed to stop %s: %w", d.device, err)
	}
	return nil
}
