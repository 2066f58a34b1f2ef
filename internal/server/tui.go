// ABOUTME: Operator TUI showing playback, device, and queue status
// ABOUTME: Real-time server console built on bubbletea
package server

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unison-audio/unison-go/internal/events"
	"github.com/unison-audio/unison-go/internal/protocol"
)

// ServerTUI manages the server console
type ServerTUI struct {
	program  *tea.Program
	updates  chan ServerStatus
	quitChan chan struct{} // Signal to stop the server
}

// ServerStatus holds server state for the TUI
type ServerStatus struct {
	Name        string
	Port        int
	Controllers int
	State       protocol.State
	Events      []events.Event
}

// tuiModel is the bubbletea model for the server console
type tuiModel struct {
	status    ServerStatus
	startTime time.Time
	quitting  bool
	quitChan  chan struct{} // Channel to signal server stop
}

type tickMsg time.Time
type statusMsg ServerStatus

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(
		tickEvery(),
	)
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			// Signal the server to stop
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = ServerStatus(msg)
		return m, nil
	}

	return m, nil
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	sectionStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("220"))

	st := m.status.State

	// Build the view
	var b strings.Builder

	// Title
	b.WriteString(titleStyle.Render("Unison Server"))
	b.WriteString("\n\n")

	// Server info
	b.WriteString(headerStyle.Render("Server: "))
	b.WriteString(valueStyle.Render(m.status.Name))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Port: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", m.status.Port)))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Uptime: "))
	uptime := time.Since(m.startTime).Round(time.Second)
	b.WriteString(valueStyle.Render(uptime.String()))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Controllers: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", m.status.Controllers)))
	b.WriteString("\n\n")

	// Playback
	b.WriteString(sectionStyle.Render("Playback"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("  State: "))
	b.WriteString(valueStyle.Render(st.Phase.String()))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("  Track: "))
	if st.Track != nil {
		b.WriteString(valueStyle.Render(st.Track.Name))
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("  Position: "))
		pos := formatClock(st.Position)
		if st.Track.Duration > 0 {
			pos += " / " + formatClock(st.Track.Duration)
		}
		b.WriteString(valueStyle.Render(pos))
	} else {
		b.WriteString(valueStyle.Render("nothing playing"))
	}
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("  Queue: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d tracks", len(st.Queue.Tracks))))
	b.WriteString("\n\n")

	// Attached devices
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Devices (%d)", len(st.Devices))))
	b.WriteString("\n\n")

	if len(st.Devices) == 0 {
		b.WriteString(valueStyle.Render("  No devices attached"))
		b.WriteString("\n")
	} else {
		for _, d := range st.Devices {
			b.WriteString(fmt.Sprintf("  • %s", d.Name))
			detail := fmt.Sprintf(" (%s, %.0fms, %s)", d.Class, d.Latency*1000, d.Quality)
			if d.LastResyncAt != nil {
				detail += fmt.Sprintf("  resync %s ago", time.Since(*d.LastResyncAt).Round(time.Second))
			}
			b.WriteString(valueStyle.Render(detail))
			b.WriteString("\n")
		}
	}

	// Recent sync events, newest last
	if len(m.status.Events) > 0 {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("Events"))
		b.WriteString("\n\n")
		for _, e := range m.status.Events {
			line := fmt.Sprintf("  %s  %-16s", e.At.Format("15:04:05"), e.Type)
			if e.DeviceID != "" {
				line += " " + e.DeviceID
			}
			if e.Value != 0 {
				line += fmt.Sprintf(" %.0fms", e.Value*1000)
			}
			b.WriteString(valueStyle.Render(line))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

// formatClock renders seconds as m:ss for position display
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// NewServerTUI creates a new server console
func NewServerTUI() *ServerTUI {
	return &ServerTUI{
		updates:  make(chan ServerStatus, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start starts the TUI
func (t *ServerTUI) Start(serverName string, port int) error {
	m := tuiModel{
		status: ServerStatus{
			Name: serverName,
			Port: port,
		},
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}

	t.program = tea.NewProgram(m, tea.WithAltScreen())

	// Start listening for updates in a goroutine
	go func() {
		for status := range t.updates {
			if t.program != nil {
				t.program.Send(statusMsg(status))
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status update to the TUI
func (t *ServerTUI) Update(status ServerStatus) {
	select {
	case t.updates <- status:
	default:
		// Don't block if channel is full
	}
}

// Stop stops the TUI
func (t *ServerTUI) Stop() {
	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan returns the channel that signals when the operator quit
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
