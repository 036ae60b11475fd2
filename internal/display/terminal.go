package display

import (
	"fmt"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	defaultCols = 80
	defaultRows = 24
	// destroyTimeout bounds how long Destroy waits for the terminal to be
	// restored.
	destroyTimeout = 2 * time.Second
)

var (
	quitBinding = key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	helpStyle  = lipgloss.NewStyle().Faint(true)
)

// TerminalWindow previews frames in the terminal using half-block
// characters, two pixel rows per text row. The bubbletea program starts with
// the first Render.
type TerminalWindow struct {
	program *tea.Program
	shared  *termShared

	started     atomic.Bool
	startOnce   sync.Once
	destroyOnce sync.Once
	done        chan struct{}
	runErr      error
}

// termShared is the state the bubbletea model shares with the window.
type termShared struct {
	cols atomic.Int32
	rows atomic.Int32
	keys chan rune
}

func (s *termShared) press(k rune) {
	select {
	case s.keys <- k:
	default:
	}
}

// NewTerminalWindow creates a terminal window. Extra options are passed to
// tea.NewProgram after tea.WithAltScreen.
func NewTerminalWindow(opts ...tea.ProgramOption) *TerminalWindow {
	shared := &termShared{keys: make(chan rune, 8)}
	shared.cols.Store(defaultCols)
	shared.rows.Store(defaultRows)

	all := append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return &TerminalWindow{
		program: tea.NewProgram(termModel{shared: shared}, all...),
		shared:  shared,
		done:    make(chan struct{}),
	}
}

func (w *TerminalWindow) start() {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go func() {
			_, w.runErr = w.program.Run()
			close(w.done)
		}()
	})
}

func (w *TerminalWindow) Render(title string, img *image.RGBA) error {
	w.start()
	select {
	case <-w.done:
		return fmt.Errorf("terminal closed: %v", w.runErr)
	default:
	}
	view := renderHalfBlocks(img, int(w.shared.cols.Load()), int(w.shared.rows.Load()))
	w.program.Send(frameMsg{title: title, view: view})
	return nil
}

// PollKey returns the next key pressed in the terminal. Once the program has
// exited every poll reports the quit key.
func (w *TerminalWindow) PollKey(timeout time.Duration) (rune, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case k := <-w.shared.keys:
		return k, true
	case <-w.done:
		return QuitKey, true
	case <-t.C:
		return 0, false
	}
}

// Destroy stops the program and restores the terminal.
func (w *TerminalWindow) Destroy() error {
	var err error
	w.destroyOnce.Do(func() {
		if !w.started.Load() {
			return
		}
		w.program.Quit()
		select {
		case <-w.done:
			err = w.runErr
		case <-time.After(destroyTimeout):
			w.program.Kill()
			err = fmt.Errorf("terminal did not exit within %v", destroyTimeout)
		}
	})
	return err
}

type frameMsg struct {
	title string
	view  string
}

type termModel struct {
	shared *termShared
	title  string
	view   string
}

func (m termModel) Init() tea.Cmd { return nil }

func (m termModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.title, m.view = msg.title, msg.view
	case tea.WindowSizeMsg:
		m.shared.cols.Store(int32(max(msg.Width, 1)))
		// title and help lines
		m.shared.rows.Store(int32(max(msg.Height-2, 1)))
	case tea.KeyMsg:
		if key.Matches(msg, quitBinding) {
			m.shared.press(QuitKey)
		} else if msg.Type == tea.KeyRunes && len(msg.Runes) > 0 {
			m.shared.press(msg.Runes[0])
		}
	}
	return m, nil
}

func (m termModel) View() string {
	help := quitBinding.Help()
	return titleStyle.Render(m.title) + "\n" + m.view + "\n" + helpStyle.Render(help.Key+": "+help.Desc)
}

// renderHalfBlocks samples img onto a cols x rows grid of "▀" cells whose
// foreground is the upper pixel and background the lower one.
func renderHalfBlocks(img *image.RGBA, cols, rows int) string {
	b := img.Bounds()
	if b.Empty() || cols <= 0 || rows <= 0 {
		return ""
	}
	if cols > b.Dx() {
		cols = b.Dx()
	}
	if rows*2 > b.Dy() {
		rows = max(b.Dy()/2, 1)
	}

	var sb strings.Builder
	for r := 0; r < rows; r++ {
		yTop := b.Min.Y + (2*r)*b.Dy()/(2*rows)
		yBot := b.Min.Y + (2*r+1)*b.Dy()/(2*rows)
		for c := 0; c < cols; c++ {
			x := b.Min.X + c*b.Dx()/cols
			top, bot := img.RGBAAt(x, yTop), img.RGBAAt(x, yBot)
			style := lipgloss.NewStyle().
				Foreground(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", top.R, top.G, top.B))).
				Background(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", bot.R, bot.G, bot.B)))
			sb.WriteString(style.Render("▀"))
		}
		if r < rows-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
