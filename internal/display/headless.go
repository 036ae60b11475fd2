package display

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// HeadlessWindow renders nowhere. Key polls simply wait out their timeout so
// the pipeline keeps its display pacing. When SnapshotPath is set the last
// frame is written there as a PNG on Destroy.
type HeadlessWindow struct {
	SnapshotPath string

	mu     sync.Mutex
	last   *image.RGBA
	title  string
	frames int
	keys   chan rune
}

// NewHeadlessWindow creates a headless window.
func NewHeadlessWindow(snapshotPath string) *HeadlessWindow {
	return &HeadlessWindow{SnapshotPath: snapshotPath, keys: make(chan rune, 1)}
}

func (w *HeadlessWindow) Render(title string, img *image.RGBA) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = img
	w.title = title
	w.frames++
	return nil
}

// PollKey returns a key injected with Press, or waits out timeout.
func (w *HeadlessWindow) PollKey(timeout time.Duration) (rune, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case k := <-w.keys:
		return k, true
	case <-t.C:
		return 0, false
	}
}

// Press queues a key for the next PollKey. Extra presses are dropped.
func (w *HeadlessWindow) Press(k rune) {
	select {
	case w.keys <- k:
	default:
	}
}

// Frames returns how many frames were rendered.
func (w *HeadlessWindow) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Last returns the most recently rendered frame and its title.
func (w *HeadlessWindow) Last() (*image.RGBA, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.title
}

func (w *HeadlessWindow) Destroy() error {
	img, _ := w.Last()
	if w.SnapshotPath == "" || img == nil {
		return nil
	}
	if dir := filepath.Dir(w.SnapshotPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}
	f, err := os.Create(w.SnapshotPath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return f.Close()
}
