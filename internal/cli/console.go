// Package cli is the terminal surface: the interactive prompt, slash
// commands, panel rendering and the cobra command tree. It owns no loop
// logic; everything maps onto calls into the agent, config and state
// packages.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mavrk/pilot/internal/agent"
)

var (
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	addedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	removedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	ruleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	thinkingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
)

// Console renders the agent loop onto a terminal and collects decisions.
// It satisfies agent.UI.
type Console struct {
	out io.Writer
	in  *bufio.Reader
}

func NewConsole(out io.Writer, in io.Reader) *Console {
	return &Console{out: out, in: bufio.NewReader(in)}
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *Console) panel(title, body string) {
	c.printf("%s", panelStyle.Render(titleStyle.Render(title)+"\n\n"+body))
}

func (c *Console) rule() {
	c.printf("%s", ruleStyle.Render(strings.Repeat("─", 60)))
}

func (c *Console) readLine() string {
	line, err := c.in.ReadString('\n')
	if err != nil {
		return strings.TrimSpace(line)
	}
	return strings.TrimSpace(line)
}

func (c *Console) Status(label, provider string) {
	c.printf("%s %s", thinkingStyle.Render(label), dimStyle.Render("using "+provider))
}

func (c *Console) Usage(inputTokens, outputTokens int, callCost float64) {
	c.printf("%s", dimStyle.Render(fmt.Sprintf("Tokens: %d -> %d | Cost: $%.4f", inputTokens, outputTokens, callCost)))
}

func (c *Console) Thinking(raw, structured string) {
	var sb strings.Builder
	if raw != "" {
		sb.WriteString("Raw Model Thinking\n\n" + raw)
	}
	if structured != "" {
		if raw != "" {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Agent Strategy\n\n" + structured)
	}
	c.panel("Deep Reasoning", sb.String())
}

func (c *Console) AgentSays(msg string) {
	c.panel("Agent Response", msg)
}

func (c *Console) Plan(plan string) {
	c.rule()
	c.panel("Technical Plan", plan)
}

func (c *Console) Critique(critique string) {
	c.panel("Self Critique", critique)
}

func (c *Console) Changes(changes []agent.Change) {
	if len(changes) == 0 {
		c.printf("%s", dimStyle.Render("No file changes proposed."))
		return
	}
	c.printf("%s", titleStyle.Render("Proposed Changes:"))
	for _, ch := range changes {
		c.printf("%s", renderDiff(ch))
	}
}

func (c *Console) Commands(commands []agent.Command) {
	c.printf("%s", titleStyle.Render("Proposed Commands:"))
	for _, cmd := range commands {
		line := "  " + okStyle.Render(cmd.Command)
		if cmd.Reason != "" {
			line += "  " + dimStyle.Render(cmd.Reason)
		}
		c.printf("%s", line)
	}
}

func (c *Console) CommandOutput(res agent.CommandResult) {
	c.panel("Command Output", res.Output())
}

func (c *Console) Applied(ch agent.Change) {
	status := "Modified"
	style := noticeStyle
	if ch.IsCreate() {
		status = "Created"
		style = okStyle
	}
	c.printf("%s: %s", style.Render(status), ch.File)
}

func (c *Console) Notice(msg string) { c.printf("%s", noticeStyle.Render(msg)) }
func (c *Console) Warn(msg string)   { c.printf("%s", warnStyle.Render(msg)) }
func (c *Console) Error(msg string)  { c.printf("%s", errorStyle.Render(msg)) }

func (c *Console) Decide() agent.Verdict {
	c.rule()
	fmt.Fprintf(c.out, "%s (A)ccept / (R)eject / Type to refine: ", promptStyle.Render(">"))
	input := c.readLine()
	switch strings.ToLower(input) {
	case "", "a", "accept":
		return agent.Verdict{Kind: agent.VerdictAccept}
	case "r", "reject":
		return agent.Verdict{Kind: agent.VerdictReject}
	default:
		return agent.Verdict{Kind: agent.VerdictRefine, Refine: input}
	}
}

func (c *Console) ConfirmRun(cmd agent.Command) bool {
	fmt.Fprintf(c.out, "Run %s? (y/n): ", okStyle.Render(cmd.Command))
	return strings.ToLower(c.readLine()) == "y"
}

func (c *Console) Pause(msg string) {
	fmt.Fprintf(c.out, "\n%s", dimStyle.Render(msg))
	_ = c.readLine()
}
