package config

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	formTitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	formItemStyle     = lipgloss.NewStyle().PaddingLeft(2)
	formSelectedStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("86")).Bold(true)
	formHelpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type formRow struct {
	provider string
	label    string
}

// FormModel is a small interactive editor for per-provider models and the
// ollama endpoint. Enter edits the selected row, enter again commits.
type FormModel struct {
	cfg     *Config
	rows    []formRow
	cursor  int
	input   textinput.Model
	editing bool
	status  string
}

func NewFormModel(cfg *Config) *FormModel {
	ti := textinput.New()
	ti.CharLimit = 120
	ti.Width = 48

	rows := []formRow{
		{provider: "ollama", label: "Ollama model"},
		{provider: "openai", label: "OpenAI model"},
		{provider: "anthropic", label: "Anthropic model"},
		{provider: "gemini", label: "Gemini model"},
		{provider: "deepseek", label: "DeepSeek model"},
		{provider: "ollama-endpoint", label: "Ollama endpoint"},
	}
	return &FormModel{cfg: cfg, rows: rows, input: ti}
}

func (m *FormModel) Init() tea.Cmd {
	return nil
}

func (m *FormModel) currentValue() string {
	row := m.rows[m.cursor]
	if row.provider == "ollama-endpoint" {
		return m.cfg.Provider("ollama").Endpoint
	}
	return m.cfg.Provider(row.provider).Model
}

func (m *FormModel) commit() {
	row := m.rows[m.cursor]
	value := strings.TrimSpace(m.input.Value())
	var err error
	if row.provider == "ollama-endpoint" {
		err = m.cfg.SetProviderEndpoint("ollama", value)
	} else {
		err = m.cfg.SetProviderModel(row.provider, value)
	}
	if err != nil {
		m.status = "save failed: " + err.Error()
		return
	}
	m.status = row.label + " updated"
}

func (m *FormModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing {
			switch msg.String() {
			case "enter":
				m.commit()
				m.editing = false
				m.input.Blur()
				return m, nil
			case "esc":
				m.editing = false
				m.input.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case "enter":
			m.editing = true
			m.input.SetValue(m.currentValue())
			m.input.Focus()
			m.status = ""
		}
	}
	return m, nil
}

func (m *FormModel) View() string {
	var b strings.Builder
	b.WriteString(formTitleStyle.Render("Pilot Configuration") + "\n\n")
	b.WriteString(formItemStyle.Render(fmt.Sprintf("Active provider: %s", m.cfg.ActiveProvider())) + "\n")
	b.WriteString(formItemStyle.Render(fmt.Sprintf("Run policy: %s", m.cfg.RunPolicy())) + "\n\n")

	for i, row := range m.rows {
		value := ""
		if row.provider == "ollama-endpoint" {
			value = m.cfg.Provider("ollama").Endpoint
		} else {
			value = m.cfg.Provider(row.provider).Model
		}
		if value == "" {
			value = "(default)"
		}
		line := fmt.Sprintf("%s: %s", row.label, value)
		if i == m.cursor {
			if m.editing {
				line = fmt.Sprintf("%s: %s", row.label, m.input.View())
			}
			b.WriteString(formSelectedStyle.Render("> "+line) + "\n")
		} else {
			b.WriteString(formItemStyle.Render("  "+line) + "\n")
		}
	}

	if m.status != "" {
		b.WriteString("\n" + formItemStyle.Render(m.status) + "\n")
	}
	b.WriteString("\n" + formHelpStyle.Render("up/down: select  enter: edit/save  esc: back  q: quit") + "\n")
	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

func RunConfigForm(cfg *Config) error {
	p := tea.NewProgram(NewFormModel(cfg))
	_, err := p.Run()
	return err
}
