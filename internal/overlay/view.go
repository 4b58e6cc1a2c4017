package overlay

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/redalert/redalert/internal/types"
)

// Theme holds the overlay's colors. All are ANSI 256 codes.
type Theme struct {
	AlertBackground lipgloss.Color
	AlertForeground lipgloss.Color
	UrgentBanner    lipgloss.Color
	FaintText       lipgloss.Color
	KeyHint         lipgloss.Color
	ErrorText       lipgloss.Color

	// status dot per connection state
	Connected    lipgloss.Color
	Connecting   lipgloss.Color
	Errored      lipgloss.Color
	Disconnected lipgloss.Color
}

// DefaultTheme is red on dark
func DefaultTheme() Theme {
	return Theme{
		AlertBackground: lipgloss.Color("124"),
		AlertForeground: lipgloss.Color("231"),
		UrgentBanner:    lipgloss.Color("226"),
		FaintText:       lipgloss.Color("245"),
		KeyHint:         lipgloss.Color("252"),
		ErrorText:       lipgloss.Color("203"),
		Connected:       lipgloss.Color("42"),
		Connecting:      lipgloss.Color("220"),
		Errored:         lipgloss.Color("196"),
		Disconnected:    lipgloss.Color("244"),
	}
}

func (t Theme) statusColor(s types.ConnectionState) lipgloss.Color {
	switch s {
	case types.Connected:
		return t.Connected
	case types.Connecting:
		return t.Connecting
	case types.Error:
		return t.Errored
	default:
		return t.Disconnected
	}
}

// View implements tea.Model
func (m Model) View() string {
	status := m.renderStatus()
	if m.snap.Alert == nil {
		idle := lipgloss.NewStyle().Foreground(m.theme.FaintText).Render("No active alert. r reconnect, q quit")
		return lipgloss.JoinVertical(lipgloss.Left, status, "", idle, m.renderNotice())
	}

	box := m.renderAlert(*m.snap.Alert)
	body := lipgloss.JoinVertical(lipgloss.Left, status, box, m.renderNotice())
	if m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, body)
	}
	return body
}

func (m Model) renderStatus() string {
	dot := lipgloss.NewStyle().Foreground(m.theme.statusColor(m.snap.Status)).Render("●")
	return dot + " " + m.snap.Status.StatusText()
}

func (m Model) renderAlert(a types.Alert) string {
	fg := lipgloss.NewStyle().Foreground(m.theme.AlertForeground).Background(m.theme.AlertBackground)

	var lines []string
	if a.IsUrgent {
		lines = append(lines, fg.Foreground(m.theme.UrgentBanner).Bold(true).Blink(true).Render("URGENT"), "")
	}
	lines = append(lines,
		fg.Bold(true).Render(a.Title),
		fg.Render(DisplayDate(a)),
	)
	if d := strings.TrimSpace(a.Description); d != "" {
		lines = append(lines, "", fg.Render(d))
	}
	lines = append(lines, "", m.renderHints(a))

	width := 60
	if m.width > 0 && m.width-4 < width {
		width = max(m.width-4, 20)
	}
	border := lipgloss.NormalBorder()
	if a.IsUrgent {
		border = lipgloss.ThickBorder()
	}
	return lipgloss.NewStyle().
		Border(border).
		BorderForeground(m.theme.AlertForeground).
		Background(m.theme.AlertBackground).
		Foreground(m.theme.AlertForeground).
		Padding(1, 2).
		Width(width).
		Render(strings.Join(lines, "\n"))
}

// renderHints lists only the actions that can be taken
func (m Model) renderHints(a types.Alert) string {
	hint := lipgloss.NewStyle().Foreground(m.theme.KeyHint).Background(m.theme.AlertBackground)
	var parts []string
	for _, act := range m.presenter.Actions(a) {
		if !act.Enabled {
			continue
		}
		switch act.Kind {
		case Primary:
			parts = append(parts, "[enter] "+act.Label)
		case Secondary:
			parts = append(parts, "[c] "+act.Label)
		case Dismiss:
			parts = append(parts, "[esc] "+act.Label)
		}
	}
	return hint.Render(strings.Join(parts, "   "))
}

func (m Model) renderNotice() string {
	if m.notice == "" {
		return ""
	}
	color := m.theme.FaintText
	if m.noticeErr {
		color = m.theme.ErrorText
	}
	return lipgloss.NewStyle().Foreground(color).Render(m.notice)
}
