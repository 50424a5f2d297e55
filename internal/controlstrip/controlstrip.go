// Package controlstrip is a textual bubbletea control strip for driving a
// player.Player from a terminal: play/pause, seek, volume, and display-mode
// keys plus a position readout. Grounded on the teacher's tui Model/
// Update/View shape and its lipgloss colour palette.
package controlstrip

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/avplayer/engine/player"
)

const (
	seekStep   = 5.0  // seconds, Left/Right
	volumeStep = 0.05 // Up/Down
	tickPeriod = 33 * time.Millisecond
	barWidth   = 40
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	navStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(tickPeriod, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model is the bubbletea model wrapping a *player.Player.
type Model struct {
	p        *player.Player
	bar      progress.Model
	sink     player.PresentationSink
	quitting bool
}

// Option configures a Model at construction, mirroring bubbles/progress's
// own functional-option style.
type Option func(*Model)

// WithPresentationSink has every tick publish the current texture to sink
// in addition to driving the terminal view, letting a caller observe frames
// outside the TUI (e.g. a -snapshot PPM dump).
func WithPresentationSink(sink player.PresentationSink) Option {
	return func(m *Model) { m.sink = sink }
}

// New creates a control-strip model for p.
func New(p *player.Player, opts ...Option) Model {
	m := Model{
		p:   p,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
	}
	for _, opt := range opts {
		opt(&m)
	}
	if m.sink != nil {
		if w, h := p.VideoSize(); w > 0 && h > 0 {
			m.sink.Allocate(w, h)
		}
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.p.Update()
		if m.sink != nil {
			// Best-effort: a failed snapshot write must never interrupt
			// playback or the control strip.
			m.sink.Publish(m.p.Texture())
		}
		return m, tick()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case " ":
			if m.p.IsPlaying() {
				m.p.Pause()
			} else {
				m.p.Play()
			}
		case "s":
			m.p.Stop()
		case "left":
			m.p.Seek(m.p.Position() - seekStep)
		case "right":
			m.p.Seek(m.p.Position() + seekStep)
		case "up":
			m.p.SetVolume(m.p.Volume() + volumeStep)
		case "down":
			m.p.SetVolume(m.p.Volume() - volumeStep)
		case "m":
			if m.p.Volume() > 0 {
				m.p.SetVolume(0)
			} else {
				m.p.SetVolume(1)
			}
		case "f":
			m.p.ToggleDisplayMode()
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("avplay"))
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(progressFraction(m.p.Position(), m.p.Duration())))
	b.WriteString("\n")
	b.WriteString(navStyle.Render(fmt.Sprintf(
		"%s  %s  vol %d%%  %s",
		formatTime(m.p.Position()), formatTime(m.p.Duration()),
		int(m.p.Volume()*100+0.5), stateLabel(m.p),
	)))
	b.WriteString("\n")
	b.WriteString(navStyle.Render("space play/pause  ←/→ seek  ↑/↓ volume  m mute  f fit  s stop  q quit"))

	if err := m.p.Error(); err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(err.Error()))
	}

	return b.String()
}

func stateLabel(p *player.Player) string {
	switch p.State() {
	case player.Playing:
		return "playing"
	case player.Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// progressFraction returns position/duration clamped to [0, 1], the shape
// progress.Model.ViewAs expects.
func progressFraction(position, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	f := position / duration
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func formatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds + 0.5)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
