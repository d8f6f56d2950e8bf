// ABOUTME: Bubbletea model for the output status view
// ABOUTME: Shows state, volume and buffer fill of one output and maps keys to controls
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

const barWidth = 30

// Controller is the output driven by the view; *audioout.Output satisfies it
type Controller interface {
	Format() audio.Format
	State() audio.State
	Error() audio.Error
	Volume() float64
	SetVolume(volume float64)
	Suspend()
	Resume()
	Stop()
	BufferSize() int
	BytesFree() int
	ProcessedUSecs() int64
	ElapsedUSecs() int64
}

// Info describes what is playing
type Info struct {
	Title  string
	Device string
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(9)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Model represents the TUI state
type Model struct {
	ctrl Controller
	cfg  Config
	info Info
	keys keyMap
	help help.Model

	volumeBar progress.Model
	bufferBar progress.Model

	// Output
	format   audio.Format
	state    audio.State
	errState audio.Error

	// Playback
	volume      int
	muted       bool
	mutedVolume int
	finished    bool
	finishErr   error

	// Counters
	processed  int64
	elapsed    int64
	bufferSize int
	bytesFree  int
	notifies   int64

	// Dimensions
	width  int
	height int
}

// NewModel creates a model for ctrl
func NewModel(cfg Config, ctrl Controller, info Info) Model {
	return Model{
		ctrl:      ctrl,
		cfg:       cfg,
		info:      info,
		keys:      newKeyMap(),
		help:      help.New(),
		volumeBar: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(barWidth)),
		bufferBar: progress.New(progress.WithSolidFill("#00AAFF"), progress.WithoutPercentage(), progress.WithWidth(barWidth)),
		format:    ctrl.Format(),
		state:     ctrl.State(),
		errState:  ctrl.Error(),
		volume:    int(ctrl.Volume()*100 + 0.5),
	}
}

// Init starts sampling counters
func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.cfg.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		w := min(barWidth, max(msg.Width-24, 10))
		m.volumeBar.Width = w
		m.bufferBar.Width = w
	case StatusMsg:
		m.applyStatus(msg)
	case NotifyMsg:
		m.notifies++
		m.sample()
	case tickMsg:
		m.sample()
		return m, m.tick()
	case DoneMsg:
		m.finished = true
		m.finishErr = msg.Err
		m.sample()
		return m, tea.Quit
	}

	return m, nil
}

// sample reads the polled counters from the controller
func (m *Model) sample() {
	m.processed = m.ctrl.ProcessedUSecs()
	m.elapsed = m.ctrl.ElapsedUSecs()
	m.bufferSize = m.ctrl.BufferSize()
	m.bytesFree = m.ctrl.BytesFree()
	m.errState = m.ctrl.Error()
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	m.state = msg.State
	m.errState = msg.Error
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderControls())
	b.WriteString("\n")
	b.WriteString(m.renderStats())

	if m.finishErr != nil {
		b.WriteString("\n" + errorStyle.Render(truncate(m.finishErr.Error(), max(m.width-6, 10))))
	}

	return boxStyle.Render(b.String()) + "\n" + m.help.View(m.keys) + "\n"
}

// renderHeader renders what is playing and where
func (m Model) renderHeader() string {
	title := m.info.Title
	if title == "" {
		title = m.cfg.Title
	}
	device := m.info.Device
	if device == "" {
		device = "default device"
	}

	state := lipgloss.NewStyle().Foreground(stateColor(m.state)).Render(stateLabel(m.state))
	if m.errState != audio.NoError {
		state += " " + errorStyle.Render("("+m.errState.String()+")")
	}
	if m.finished {
		state += " finished"
	}

	return headerStyle.Render(truncate(title, 48)) + "\n" +
		row("Device", truncate(device, 40)) +
		row("Format", fmt.Sprintf("%d Hz %s %d-bit", m.format.SampleRate, channelName(m.format.Channels), m.format.BitDepth)) +
		row("State", state)
}

// renderControls renders volume and buffer fill
func (m Model) renderControls() string {
	volume := fmt.Sprintf("%s %3d%%", m.volumeBar.ViewAs(float64(m.volume)/100), m.volume)
	if m.muted {
		volume += " muted"
	}

	used := m.bufferSize - m.bytesFree
	fill := 0.0
	if m.bufferSize > 0 {
		fill = float64(used) / float64(m.bufferSize)
	}
	buffer := fmt.Sprintf("%s %s / %s", m.bufferBar.ViewAs(fill),
		humanize.IBytes(uint64(max(used, 0))), humanize.IBytes(uint64(max(m.bufferSize, 0))))

	return row("Volume", volume) + row("Buffer", buffer)
}

// renderStats renders playback counters
func (m Model) renderStats() string {
	return row("Played", formatMicros(m.processed)) +
		row("Elapsed", formatMicros(m.elapsed)) +
		row("Notifies", humanize.Comma(m.notifies))
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.VolumeUp):
		return m.setVolume(m.volume + m.cfg.VolumeStep)
	case key.Matches(msg, m.keys.VolumeDown):
		return m.setVolume(m.volume - m.cfg.VolumeStep)
	case key.Matches(msg, m.keys.Mute):
		if m.muted {
			m.muted = false
			return m.setVolume(m.mutedVolume)
		}
		m.muted = true
		m.mutedVolume = m.volume
		return m.setVolume(0)
	case key.Matches(msg, m.keys.Pause):
		switch {
		case m.state == audio.StateSuspended:
			return m, m.control(m.ctrl.Resume)
		case m.state.Running():
			return m, m.control(m.ctrl.Suspend)
		}
	case key.Matches(msg, m.keys.Stop):
		if m.state != audio.StateStopped {
			return m, m.control(m.ctrl.Stop)
		}
	}

	return m, nil
}

func (m Model) setVolume(percent int) (tea.Model, tea.Cmd) {
	percent = max(0, min(100, percent))
	if percent > 0 {
		m.muted = false
	}
	m.volume = percent
	v := float64(percent) / 100
	return m, m.control(func() { m.ctrl.SetVolume(v) })
}

// control runs fn off the update loop; outputs may deliver state changes before returning
func (m Model) control(fn func()) tea.Cmd {
	return func() tea.Msg {
		fn()
		return nil
	}
}

type tickMsg time.Time

// StatusMsg reports an output state change
type StatusMsg struct {
	State audio.State
	Error audio.Error
}

// NotifyMsg reports a processed-audio notification
type NotifyMsg struct{}

// DoneMsg ends the view once playback is over
type DoneMsg struct {
	Err error
}

// Utility functions
func row(label, value string) string {
	return labelStyle.Render(label+":") + " " + value + "\n"
}

func stateLabel(s audio.State) string {
	name := s.String()
	return strings.ToUpper(name[:1]) + name[1:]
}

func stateColor(s audio.State) lipgloss.Color {
	switch s {
	case audio.StateActive:
		return lipgloss.Color("#00FF00")
	case audio.StateIdle:
		return lipgloss.Color("#FFFF00")
	case audio.StateSuspended:
		return lipgloss.Color("#00AAFF")
	default:
		return lipgloss.Color("#888888")
	}
}

func formatMicros(us int64) string {
	d := (time.Duration(us) * time.Microsecond).Truncate(100 * time.Millisecond)
	return fmt.Sprintf("%d:%02d.%d", int(d.Minutes()), int(d.Seconds())%60, int(d.Milliseconds()/100)%10)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}
