// Package overlay burns the latest sensor readings onto video frames as
// lines of text.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
)

// Green is the overlay text colour.
var Green = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// Slot is one sensor's contribution to a frame: its latest value, or no
// data when OK is false.
type Slot struct {
	Name  string
	Value any
	OK    bool
}

// FormatLine renders a slot as overlay text.
func FormatLine(s Slot) string {
	if !s.OK {
		return fmt.Sprintf("No data from %s", s.Name)
	}
	return fmt.Sprintf("Data from %s: %v", s.Name, s.Value)
}

// TextStyle controls how a line is drawn.
type TextStyle struct {
	Scale     float64
	Color     color.RGBA
	Thickness int
}

// TextDrawer draws a single line of text with its baseline starting at origin.
type TextDrawer interface {
	DrawText(dst draw.Image, text string, origin image.Point, style TextStyle)
}

// Layout places the overlay lines: line i has its baseline at
// Origin + (0, i*LineSpacing).
type Layout struct {
	Origin      image.Point
	LineSpacing int
	Style       TextStyle
}

// DefaultLayout starts at (10, 30) with 30px spacing, green text at scale 1
// and thickness 2.
func DefaultLayout() Layout {
	return Layout{
		Origin:      image.Pt(10, 30),
		LineSpacing: 30,
		Style:       TextStyle{Scale: 1, Color: Green, Thickness: 2},
	}
}

// State holds the overlay text for the current frame. The lines are rebuilt
// and drawn under one lock so a reader never observes a partial set.
type State struct {
	mu     sync.Mutex
	lines  []string
	drawer TextDrawer
	layout Layout
}

// NewState creates an overlay state that draws with drawer.
func NewState(drawer TextDrawer, layout Layout) *State {
	return &State{drawer: drawer, layout: layout}
}

// Compose replaces the overlay lines with one line per slot, in order, and
// draws them onto dst.
func (s *State) Compose(dst draw.Image, slots []Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = s.lines[:0]
	for _, slot := range slots {
		s.lines = append(s.lines, FormatLine(slot))
	}
	for i, line := range s.lines {
		origin := s.layout.Origin.Add(image.Pt(0, i*s.layout.LineSpacing))
		s.drawer.DrawText(dst, line, origin, s.layout.Style)
	}
}

// Lines returns a copy of the lines drawn by the last Compose.
func (s *State) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}
