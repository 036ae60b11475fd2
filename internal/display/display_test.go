package display

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/banshee-data/sensor.display/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

type fakeWindow struct {
	renders    int
	titles     []string
	keys       []rune
	polls      []time.Duration
	renderErr  error
	destroyed  int
	destroyErr error
}

func (w *fakeWindow) Render(title string, img *image.RGBA) error {
	w.renders++
	w.titles = append(w.titles, title)
	return w.renderErr
}

func (w *fakeWindow) PollKey(timeout time.Duration) (rune, bool) {
	w.polls = append(w.polls, timeout)
	if len(w.keys) == 0 {
		return 0, false
	}
	k := w.keys[0]
	w.keys = w.keys[1:]
	return k, true
}

func (w *fakeWindow) Destroy() error {
	w.destroyed++
	return w.destroyErr
}

func TestNewSink_Validation(t *testing.T) {
	if _, err := NewSink(nil, "Window", 30); err == nil {
		t.Error("expected error for nil window")
	}
	if _, err := NewSink(&fakeWindow{}, "Window", 0); err == nil {
		t.Error("expected error for zero frequency")
	}
}

func TestSink_ShowPollsForOnePeriod(t *testing.T) {
	w := &fakeWindow{}
	s, err := NewSink(w, "Window", 30)
	if err != nil {
		t.Fatalf("NewSink() = %v", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < 3; i++ {
		if err := s.Show(img); err != nil {
			t.Fatalf("Show() = %v", err)
		}
	}
	if w.renders != 3 || s.Shown() != 3 {
		t.Errorf("renders = %d, Shown() = %d; want 3", w.renders, s.Shown())
	}
	if w.titles[0] != "Window" {
		t.Errorf("title = %q, want Window", w.titles[0])
	}
	// 1000/30 truncated, as a whole number of milliseconds
	if w.polls[0] != 33*time.Millisecond {
		t.Errorf("poll timeout = %v, want 33ms", w.polls[0])
	}
	if s.Stopped() {
		t.Error("sink stopped without the quit key")
	}
}

func TestSink_QuitKeyStops(t *testing.T) {
	w := &fakeWindow{keys: []rune{'x', QuitKey}}
	s, _ := NewSink(w, "Window", 30)
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))

	s.Show(img)
	if s.Stopped() {
		t.Fatal("a non-quit key must not stop the sink")
	}
	s.Show(img)
	if !s.Stopped() {
		t.Fatal("quit key should stop the sink")
	}
}

func TestSink_PollWithoutFrame(t *testing.T) {
	w := &fakeWindow{keys: []rune{QuitKey}}
	s, _ := NewSink(w, "Window", 50)

	s.Poll()
	if w.renders != 0 || s.Shown() != 0 {
		t.Errorf("Poll rendered %d frames, want none", w.renders)
	}
	if len(w.polls) != 1 || w.polls[0] != 20*time.Millisecond {
		t.Errorf("polls = %v, want one 20ms poll", w.polls)
	}
	if !s.Stopped() {
		t.Error("quit key seen by Poll should stop the sink")
	}
}

func TestSink_RenderError(t *testing.T) {
	boom := errors.New("no display")
	s, _ := NewSink(&fakeWindow{renderErr: boom}, "Window", 30)
	if err := s.Show(image.NewRGBA(image.Rect(0, 0, 1, 1))); !errors.Is(err, boom) {
		t.Errorf("Show() = %v, want wrapped %v", err, boom)
	}
}

func TestSink_CloseOnce(t *testing.T) {
	w := &fakeWindow{}
	s, _ := NewSink(w, "Window", 30)
	s.Close()
	s.Close()
	if w.destroyed != 1 {
		t.Errorf("window destroyed %d times, want 1", w.destroyed)
	}
}

func TestHeadlessWindow_Snapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap", "last.png")
	w := NewHeadlessWindow(path)

	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	w.Render("Window", img)
	if w.Frames() != 1 {
		t.Errorf("Frames() = %d, want 1", w.Frames())
	}
	if last, title := w.Last(); last != img || title != "Window" {
		t.Error("Last() should return the rendered frame and title")
	}

	if err := w.Destroy(); err != nil {
		t.Fatalf("Destroy() = %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("snapshot is not a PNG: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("snapshot bounds = %v, want %v", decoded.Bounds(), img.Bounds())
	}
}

func TestHeadlessWindow_NoSnapshot(t *testing.T) {
	if err := NewHeadlessWindow("").Destroy(); err != nil {
		t.Errorf("Destroy() = %v", err)
	}
}

func TestHeadlessWindow_PollKey(t *testing.T) {
	w := NewHeadlessWindow("")

	start := time.Now()
	if _, ok := w.PollKey(20 * time.Millisecond); ok {
		t.Error("PollKey() reported a key with none pressed")
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("PollKey returned after %v, want it to wait out the timeout", elapsed)
	}

	w.Press(QuitKey)
	if k, ok := w.PollKey(time.Second); !ok || k != QuitKey {
		t.Errorf("PollKey() = %q, %v; want quit key", k, ok)
	}
}

func TestTermModel_KeyMapping(t *testing.T) {
	shared := &termShared{keys: make(chan rune, 8)}
	var m tea.Model = termModel{shared: shared}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	want := []rune{'a', QuitKey, QuitKey}
	for i, k := range want {
		select {
		case got := <-shared.keys:
			if got != k {
				t.Errorf("key %d = %q, want %q", i, got, k)
			}
		default:
			t.Fatalf("key %d missing", i)
		}
	}
}

func TestTermModel_FrameAndSize(t *testing.T) {
	shared := &termShared{keys: make(chan rune, 1)}
	var m tea.Model = termModel{shared: shared}

	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	if shared.cols.Load() != 100 || shared.rows.Load() != 38 {
		t.Errorf("size = %dx%d, want 100x38", shared.cols.Load(), shared.rows.Load())
	}

	m, _ = m.Update(frameMsg{title: "Window", view: "PIXELS"})
	view := m.View()
	if !strings.Contains(view, "Window") || !strings.Contains(view, "PIXELS") || !strings.Contains(view, "quit") {
		t.Errorf("View() = %q", view)
	}
}

func TestRenderHalfBlocks(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	out := renderHalfBlocks(img, 10, 5)

	lines := strings.Split(out, "\n")
	if len(lines) != 5 {
		t.Fatalf("rows = %d, want 5", len(lines))
	}
	for i, line := range lines {
		if n := strings.Count(line, "▀"); n != 10 {
			t.Errorf("row %d has %d cells, want 10", i, n)
		}
	}

	// A grid larger than the image is clamped to it.
	small := renderHalfBlocks(image.NewRGBA(image.Rect(0, 0, 3, 2)), 80, 24)
	if got := strings.Count(small, "▀"); got != 3 {
		t.Errorf("clamped cells = %d, want 3", got)
	}

	if renderHalfBlocks(image.NewRGBA(image.Rect(0, 0, 0, 0)), 80, 24) != "" {
		t.Error("empty image should render nothing")
	}
}

func TestTerminalWindow_DestroyWithoutRender(t *testing.T) {
	w := NewTerminalWindow()
	if err := w.Destroy(); err != nil {
		t.Errorf("Destroy() before any Render = %v", err)
	}
	if _, ok := w.PollKey(time.Millisecond); ok {
		t.Error("PollKey() on an idle window should time out")
	}
}
