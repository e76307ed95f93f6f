// ABOUTME: Interactive TUI wizard for first-time herald configuration.
// ABOUTME: Bubbletea model stepping through feed URL, bot token, channel and ledger backend.
package tui

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Step represents the current wizard step.
type Step int

const (
	StepFeedURL Step = iota
	StepToken
	StepChannel
	StepBackend
	StepDone
)

const stepCount = int(StepDone)

// Answers holds the values collected by the wizard.
type Answers struct {
	FeedURL     string
	BotToken    string
	ChannelName string
	Backend     string
}

type field struct {
	title string
	hint  string
	// check normalizes the raw input or reports why it is rejected.
	check func(string) (string, error)
}

var fields = [stepCount]field{
	{"Announcements Feed", "Atom feed URL, e.g. https://gatech.instructure.com/feeds/announcements/enrollment_xxx.atom", checkFeedURL},
	{"Slack Bot Token", "xoxb-... token with chat:write and channels:read", checkToken},
	{"Slack Channel", "channel name, with or without #", checkChannel},
	{"Ledger Backend", "sqlite or charm, press Enter for sqlite", checkBackend},
}

// SetupModel is the bubbletea model for the setup wizard.
type SetupModel struct {
	step     Step
	inputs   [stepCount]textinput.Model
	problem  string
	quitting bool
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	brandStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// NewSetupModel creates a new setup wizard model, pre-filling with existing config values.
func NewSetupModel(existing Answers) SetupModel {
	values := [stepCount]string{existing.FeedURL, existing.BotToken, existing.ChannelName, existing.Backend}
	placeholders := [stepCount]string{"https://", "xoxb-", "#announcements", "sqlite"}

	var m SetupModel
	for i := range m.inputs {
		in := textinput.New()
		in.Placeholder = placeholders[i]
		in.Width = 60
		if values[i] != "" {
			in.SetValue(values[i])
		}
		m.inputs[i] = in
	}
	m.inputs[StepToken].EchoMode = textinput.EchoPassword
	m.inputs[StepToken].EchoCharacter = '•'
	m.inputs[StepFeedURL].Focus()
	return m
}

// Init implements tea.Model.
func (m SetupModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m SetupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.step == StepDone {
		return m, nil
	}

	idx := int(m.step)
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEscape:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m.handleEnter()
		}
	}

	var cmd tea.Cmd
	m.inputs[idx], cmd = m.inputs[idx].Update(msg)
	return m, cmd
}

func (m SetupModel) handleEnter() (tea.Model, tea.Cmd) {
	idx := int(m.step)

	val, err := fields[idx].check(m.inputs[idx].Value())
	if err != nil {
		m.problem = err.Error()
		return m, nil
	}
	m.problem = ""
	m.inputs[idx].SetValue(val)
	m.inputs[idx].Blur()

	m.step++
	if m.step == StepDone {
		return m, tea.Quit
	}
	m.inputs[m.step].Focus()
	return m, textinput.Blink
}

// View implements tea.Model.
func (m SetupModel) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(brandStyle.Render("   HERALD"))
	b.WriteString(titleStyle.Render(" - Setup"))
	b.WriteString("\n\n")

	if m.step == StepDone {
		a := m.Result()
		b.WriteString(successStyle.Render("Setup complete!"))
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("  Feed:     %s\n", a.FeedURL))
		b.WriteString(fmt.Sprintf("  Token:    %s\n", maskToken(a.BotToken)))
		b.WriteString(fmt.Sprintf("  Channel:  #%s\n", a.ChannelName))
		b.WriteString(fmt.Sprintf("  Backend:  %s\n\n", a.Backend))
		return b.String()
	}

	f := fields[m.step]
	b.WriteString(stepStyle.Render(fmt.Sprintf("Step %d of %d: %s", int(m.step)+1, stepCount, f.title)))
	b.WriteString("\n")
	b.WriteString(promptStyle.Render("(" + f.hint + ")"))
	b.WriteString("\n")
	b.WriteString(m.inputs[m.step].View())
	b.WriteString("\n")
	if m.problem != "" {
		b.WriteString(errorStyle.Render(m.problem))
		b.WriteString("\n")
	}
	return b.String()
}

// Result returns the entered values.
func (m SetupModel) Result() Answers {
	return Answers{
		FeedURL:     m.inputs[StepFeedURL].Value(),
		BotToken:    m.inputs[StepToken].Value(),
		ChannelName: m.inputs[StepChannel].Value(),
		Backend:     m.inputs[StepBackend].Value(),
	}
}

// ShouldSave returns true if the wizard completed and the user did not cancel.
func (m SetupModel) ShouldSave() bool {
	return m.step == StepDone && !m.quitting
}

func checkFeedURL(s string) (string, error) {
	s = strings.TrimSpace(s)
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("need an http(s) URL")
	}
	return s, nil
}

func checkToken(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("a bot token is required")
	}
	return s, nil
}

func checkChannel(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if s == "" || strings.ContainsAny(s, " \t") {
		return "", fmt.Errorf("need a channel name without spaces")
	}
	return s, nil
}

func checkBackend(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return "sqlite", nil
	case "sqlite", "charm":
		return s, nil
	}
	return "", fmt.Errorf("backend must be sqlite or charm")
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("•", len(token))
	}
	return token[:5] + strings.Repeat("•", 6) + token[len(token)-3:]
}
