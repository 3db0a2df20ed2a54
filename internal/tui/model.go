// Package tui is the terminal front end: it renders the relay buffer and
// service liveness and forwards typed messages to the relay.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"gugudan/internal/model"
)

// Relay is what the UI needs from the message relay.
type Relay interface {
	Messages() []model.Message
	Connected() bool
	Connect()
	Send(text string) bool
	ShowExplanations() bool
	ToggleExplanations() bool
	Subscribe() <-chan struct{}
}

// Tracker is what the UI needs from the liveness tracker.
type Tracker interface {
	CheckStatus(ctx context.Context) model.ServiceStatus
	Status() model.ServiceStatus
}

type relayChangedMsg struct{}

type relayClosedMsg struct{}

type tickMsg time.Time

type statusMsg model.ServiceStatus

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	relay    Relay
	tracker  Tracker
	changes  <-chan struct{}
	interval time.Duration

	messages         []model.Message
	connected        bool
	showExplanations bool
	services         model.ServiceStatus
	statusLine       string
	statusErr        bool

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model
	theme    theme
}

// New builds the chat model. interval is how often service liveness is re-checked.
func New(relay Relay, tracker Tracker, interval time.Duration) Model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "구구단 단수를 입력하세요 (예: 3단, 5단 15까지)"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true

	m := Model{
		relay:      relay,
		tracker:    tracker,
		changes:    relay.Subscribe(),
		interval:   interval,
		statusLine: "connecting...",
		input:      input,
		timeline:   timeline,
		spinner:    sp,
		theme:      newTheme(),
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitForChange(m.changes),
		m.checkStatusCmd(),
		tickEvery(m.interval),
	)
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return relayClosedMsg{}
		}
		return relayChangedMsg{}
	}
}

func tickEvery(interval time.Duration) tea.Cmd {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) checkStatusCmd() tea.Cmd {
	tracker := m.tracker
	if tracker == nil {
		return nil
	}
	return func() tea.Msg {
		return statusMsg(tracker.CheckStatus(context.Background()))
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case relayChangedMsg:
		m.refresh()
		cmds = append(cmds, waitForChange(m.changes))
	case relayClosedMsg:
		m.connected = false
		m.setStatus("relay stopped", true)
	case tickMsg:
		cmds = append(cmds, m.checkStatusCmd(), tickEvery(m.interval))
	case statusMsg:
		m.services = model.ServiceStatus(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTimeline()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			m.submit()
			return m, tea.Batch(cmds...)
		case "ctrl+e":
			if m.relay.ToggleExplanations() {
				m.setStatus("explanations shown", false)
			} else {
				m.setStatus("explanations hidden", false)
			}
			m.refresh()
			return m, tea.Batch(cmds...)
		case "ctrl+r":
			m.relay.Connect()
			m.setStatus("reconnecting...", false)
			return m, tea.Batch(cmds...)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) submit() {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return
	}
	if !m.relay.Send(text) {
		m.setStatus("not connected: message not sent", true)
		return
	}
	m.input.Reset()
	m.setStatus("sent", false)
	m.refresh()
}

func (m *Model) setStatus(text string, isErr bool) {
	m.statusLine = text
	m.statusErr = isErr
}

// refresh re-reads relay state and re-renders the timeline.
func (m *Model) refresh() {
	wasConnected := m.connected
	m.messages = m.relay.Messages()
	m.connected = m.relay.Connected()
	m.showExplanations = m.relay.ShowExplanations()

	if m.connected != wasConnected {
		if m.connected {
			m.setStatus("connected", false)
		} else {
			m.setStatus("disconnected, retrying...", true)
		}
	}
	m.renderTimeline()
}

func (m *Model) resize() {
	headerHeight := 3
	inputHeight := 3
	footerHeight := 2
	w := maxInt(20, m.width-4)
	h := maxInt(3, m.height-headerHeight-inputHeight-footerHeight-2)
	m.timeline.Width = w
	m.timeline.Height = h
	m.input.Width = maxInt(10, w-4)
}

func (m *Model) renderTimeline() {
	m.timeline.SetContent(renderMessages(m.messages, m.showExplanations, m.theme, m.timeline.Width))
	m.timeline.GotoBottom()
}

// renderMessages formats the buffer one message per block. Explanations are
// indented under the answer they follow, or omitted when show is false.
func renderMessages(msgs []model.Message, show bool, th theme, width int) string {
	if len(msgs) == 0 {
		return th.helpText.Render("no messages yet")
	}

	var b strings.Builder
	for _, msg := range msgs {
		if msg.Type == model.TypeExplanation && !show {
			continue
		}

		line := th.timestamp.Render(shortTime(msg.Timestamp)) + " " +
			th.sender(msg.Sender).Render(msg.Sender) + ": "

		content := msg.Content
		switch msg.Type {
		case model.TypeExplanation:
			line = "  ↳ " + line
			content = th.explanation.Render(content)
		case model.TypeAnswer:
			if msg.HasExplanation {
				content += " " + th.helpText.Render("[설명 있음]")
			}
		}
		line += content

		if width > 0 {
			line = lipgloss.NewStyle().Width(width).Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortTime(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return "--:--:--"
	}
	return t.Local().Format("15:04:05")
}

func (m Model) View() string {
	header := m.renderHeader()
	content := m.theme.panel.Width(maxInt(20, m.width-4)).Render(m.timeline.View())
	input := m.renderInput()
	footer := m.renderFooter()
	return m.theme.root.Render(lipgloss.JoinVertical(lipgloss.Left, header, content, input, footer))
}

func (m Model) renderHeader() string {
	conn := m.theme.status.Render("● connected")
	if !m.connected {
		conn = m.theme.errorStatus.Render(m.spinner.View() + " disconnected")
	}

	badges := []string{
		m.badge("supervisor", m.services.Supervisor),
		m.badge("agent1", m.services.Agent1),
		m.badge("agent2", m.services.Agent2),
	}
	expl := "explanations: on"
	if !m.showExplanations {
		expl = "explanations: off"
	}

	line := fmt.Sprintf("구구단 · %s  %s  %s", conn, strings.Join(badges, " "), m.theme.helpText.Render(expl))
	return m.theme.header.Width(maxInt(20, m.width-4)).Render(line)
}

func (m Model) badge(name string, up bool) string {
	if up {
		return m.theme.badgeUp.Render(name + " up")
	}
	return m.theme.badgeDown.Render(name + " down")
}

func (m Model) renderInput() string {
	return m.theme.inputPanel.Width(maxInt(20, m.width-4)).Render(m.input.View())
}

func (m Model) renderFooter() string {
	style := m.theme.status
	if m.statusErr {
		style = m.theme.errorStatus
	}
	hints := m.theme.helpText.Render("Enter send · Ctrl+E explanations · Ctrl+R reconnect · PgUp/PgDn scroll · Esc/Ctrl+C quit")
	return m.theme.footer.Render(style.Render(m.statusLine) + "\n" + hints)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
