// ABOUTME: TUI initialization and control
// ABOUTME: Wraps a bubbletea program and feeds it output notifications
package ui

import (
	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/Resonate-Protocol/audioout/pkg/audioout"
	tea "github.com/charmbracelet/bubbletea"
)

// NewProgram creates the status view program for out
func NewProgram(cfg Config, out *audioout.Output, info Info) *tea.Program {
	var opts []tea.ProgramOption
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	return tea.NewProgram(NewModel(cfg, out, info), opts...)
}

// Observe relays out's notifications to p until the returned func is called
func Observe(p *tea.Program, out *audioout.Output) func() {
	return out.Subscribe(programObserver{p: p, out: out})
}

type programObserver struct {
	p   *tea.Program
	out *audioout.Output
}

func (o programObserver) Notify() {
	o.p.Send(NotifyMsg{})
}

func (o programObserver) StateChanged(state audio.State) {
	o.p.Send(StatusMsg{State: state, Error: o.out.Error()})
}
