package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/mavrk/pilot/internal/agent"
	"github.com/mavrk/pilot/internal/config"
	"github.com/mavrk/pilot/internal/cost"
	"github.com/mavrk/pilot/internal/providers"
	"github.com/mavrk/pilot/internal/state"
)

const helpText = `Available Commands
  /provider [name]      Switch provider (ollama, openai, anthropic, gemini, deepseek)
  /plan <prompt>        Generate a deep technical plan with full project context
  /planning             Toggle always-plan mode
  /fast                 Toggle fast mode (skip post-apply review)
  /run_policy [p]       Set run policy (ask, always, never)
  /cls                  Clear the terminal screen
  /config <key> <val>   Set configuration (e.g. /config openai_api_key sk-...)
  /code                 Open current directory in VS Code
  /reset                Clear session history
  /voice                Toggle voice output
  /newline              Toggle literal \n support
  /debug [n]            Show last n exchanges with full JSON data
  /history [n|all]      Show session history highlights
  /stats                Show session token usage and cost
  /mission              Toggle continuous mission mode
  /visibility           Toggle project visibility permission for the agent
  /session [sub]        Manage chat sessions (list, new, load, delete, rename)
  /web                  Toggle web browsing support (search & browse)
  /store                Store a session snapshot
  /persist              Toggle session auto-reload on startup
  /help                 Show this help message
  /exit                 Exit`

// REPL is the interactive prompt loop. Slash commands are handled locally;
// everything else becomes an agent turn.
type REPL struct {
	Cfg     *config.Config
	Store   *state.Store
	Stats   *cost.Stats
	Debug   *agent.DebugRing
	Loop    *agent.Loop
	Console *Console
	Flags   agent.Flags

	out io.Writer

	// turnContext derives the context for one agent turn. The default
	// re-arms SIGINT around every turn, so Ctrl-C cancels only the
	// in-flight call and the next prompt starts with a live context.
	// Swapped in tests.
	turnContext func(ctx context.Context) (context.Context, context.CancelFunc)
}

func NewREPL(cfg *config.Config, store *state.Store, stats *cost.Stats, debug *agent.DebugRing, loop *agent.Loop, console *Console, flags agent.Flags) *REPL {
	return &REPL{
		Cfg:     cfg,
		Store:   store,
		Stats:   stats,
		Debug:   debug,
		Loop:    loop,
		Console: console,
		Flags:   flags,
		out:     console.out,
		turnContext: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		},
	}
}

// Run reads prompts until EOF or /exit.
func (r *REPL) Run(ctx context.Context) {
	for {
		fmt.Fprintf(r.out, "\n%s ", promptStyle.Render("pilot>"))
		line, err := r.Console.in.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return
			}
			continue
		}
		turnCtx, stop := r.turnContext(ctx)
		r.Loop.Handle(turnCtx, line, r.Flags)
		stop()
	}
}

// command dispatches one slash command. Returns true to exit the REPL.
func (r *REPL) command(ctx context.Context, text string) bool {
	parts := strings.Fields(text)
	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "/exit", "/quit":
		return true

	case "/help":
		r.Console.panel("Help", helpText)

	case "/cls", "/clear_screen":
		fmt.Fprint(r.out, "\x1b[2J\x1b[H")

	case "/provider":
		r.providerCmd(parts)

	case "/plan":
		if len(parts) < 2 {
			r.Console.Error("Usage: /plan <instruction>")
			return false
		}
		flags := r.Flags
		flags.Plan = true
		r.Loop.Handle(ctx, strings.Join(parts[1:], " "), flags)

	case "/planning":
		r.toggle("Planning mode", r.Cfg.PlanningMode(), r.Cfg.SetPlanningMode)

	case "/fast":
		r.toggle("Fast mode", r.Cfg.FastMode(), r.Cfg.SetFastMode)

	case "/voice":
		r.toggle("Voice mode", r.Cfg.VoiceMode(), r.Cfg.SetVoiceMode)

	case "/newline":
		r.toggle("Newline support", r.Cfg.NewlineSupport(), r.Cfg.SetNewlineSupport)

	case "/visibility":
		r.toggle("Full visibility", r.Cfg.VisibilityAllowed(), r.Cfg.SetVisibilityAllowed)

	case "/persist":
		r.toggle("Session persistence", r.Cfg.AutoReload(), r.Cfg.SetAutoReload)

	case "/mission":
		on := !r.Cfg.MissionMode()
		r.toggle("Mission mode", r.Cfg.MissionMode(), r.Cfg.SetMissionMode)
		if on {
			r.Console.Notice("The agent will now work autonomously until the task is complete.")
		}

	case "/web":
		on := !r.Cfg.WebBrowsingAllowed()
		r.toggle("Web browsing", r.Cfg.WebBrowsingAllowed(), r.Cfg.SetWebBrowsingAllowed)
		if on {
			r.Console.Notice("The agent can now use web_search and web_browse.")
		}

	case "/run_policy":
		r.runPolicyCmd(parts)

	case "/config":
		r.configCmd(ctx, parts)

	case "/reset", "/clear":
		if err := r.Store.Clear(ctx); err != nil {
			r.Console.Error("Failed to clear history: " + err.Error())
		} else {
			r.Console.Warn("Session history cleared.")
		}

	case "/code", "/vs":
		if err := exec.Command("code", ".").Start(); err != nil {
			r.Console.Error("VS Code command 'code' not found in PATH.")
		}

	case "/debug":
		r.debugCmd(parts)

	case "/history":
		r.historyCmd(ctx, parts)

	case "/stats":
		in, out, total := r.Stats.Totals()
		r.Console.panel("Session Statistics", fmt.Sprintf(
			"Input Tokens:  %d\nOutput Tokens: %d\nTotal Tokens:  %d\nTotal Cost:    $%.4f",
			in, out, in+out, total))

	case "/session":
		r.sessionCmd(ctx, parts)

	case "/store":
		if err := r.Store.Snapshot(ctx); err != nil {
			r.Console.Error("Snapshot failed: " + err.Error())
		} else {
			r.Console.Notice("Session snapshot stored.")
		}

	default:
		r.Console.Error("Unknown command: " + cmd)
	}
	return false
}

func (r *REPL) toggle(label string, current bool, set func(bool) error) {
	if err := set(!current); err != nil {
		r.Console.Error("Failed to save config: " + err.Error())
		return
	}
	stateWord := "OFF"
	if !current {
		stateWord = "ON"
	}
	r.Console.Warn(fmt.Sprintf("%s: %s", label, stateWord))
}

func (r *REPL) providerCmd(parts []string) {
	if len(parts) < 2 {
		r.Console.printf("Current provider: %s", titleStyle.Render(r.Cfg.ActiveProvider()))
		r.Console.printf("Available: %s", strings.Join(providers.Names(), ", "))
		return
	}
	name := strings.ToLower(parts[1])
	for _, known := range providers.Names() {
		if name == known {
			if err := r.Cfg.SetActiveProvider(name); err != nil {
				r.Console.Error("Failed to save config: " + err.Error())
				return
			}
			r.Console.Notice("Switched to provider: " + name)
			return
		}
	}
	r.Console.Error("Unknown provider: " + name)
}

func (r *REPL) runPolicyCmd(parts []string) {
	if len(parts) < 2 {
		r.Console.printf("Current run policy: %s", titleStyle.Render(string(r.Cfg.RunPolicy())))
		r.Console.printf("Available: ask, always, never")
		return
	}
	policy, err := config.ParseRunPolicy(strings.ToLower(parts[1]))
	if err != nil {
		r.Console.Error(err.Error())
		return
	}
	if err := r.Cfg.SetRunPolicy(policy); err != nil {
		r.Console.Error("Failed to save config: " + err.Error())
		return
	}
	r.Console.Notice("Run policy set to: " + string(policy))
}

// configCmd handles /config <key> <value>. API keys and the ollama endpoint
// are validated against the live backend before being kept; a failed
// validation offers a rollback.
func (r *REPL) configCmd(ctx context.Context, parts []string) {
	if len(parts) < 3 {
		r.Console.Error("Usage: /config <key> <value>")
		return
	}
	key := parts[1]
	val := strings.Join(parts[2:], " ")

	switch {
	case strings.HasSuffix(key, "_api_key"):
		name := strings.TrimSuffix(key, "_api_key")
		if !knownProvider(name) {
			r.Console.Error("Unknown provider: " + name)
			return
		}
		old, _ := providers.LoadCredential(name)
		if err := providers.StoreCredential(name, val); err != nil {
			r.Console.Error("Failed to store credential: " + err.Error())
			return
		}
		r.validateOrRollback(ctx, name, func() {
			_ = providers.StoreCredential(name, old)
		})

	case key == "ollama_endpoint":
		old := r.Cfg.Provider("ollama").Endpoint
		if err := r.Cfg.SetProviderEndpoint("ollama", val); err != nil {
			r.Console.Error("Failed to save config: " + err.Error())
			return
		}
		r.validateOrRollback(ctx, "ollama", func() {
			_ = r.Cfg.SetProviderEndpoint("ollama", old)
		})

	case strings.HasSuffix(key, "_max_tokens"):
		name := strings.TrimSuffix(key, "_max_tokens")
		if !knownProvider(name) {
			r.Console.Error("Unknown provider for max tokens: " + name)
			return
		}
		switch strings.ToLower(val) {
		case "unlimited", "max", "none":
			if err := r.Cfg.SetProviderMaxTokens(name, 0); err != nil {
				r.Console.Error("Failed to save config: " + err.Error())
				return
			}
			r.Console.Notice("Set " + name + " tokens to unlimited.")
		default:
			tokens, err := strconv.Atoi(val)
			if err != nil {
				r.Console.Error("Invalid token count: " + val)
				return
			}
			if err := r.Cfg.SetProviderMaxTokens(name, tokens); err != nil {
				r.Console.Error("Failed to save config: " + err.Error())
				return
			}
			r.Console.Notice(fmt.Sprintf("Set %s max tokens to %d.", name, tokens))
		}

	default:
		r.Console.Error("Unknown config key. Supported: *_api_key, ollama_endpoint, *_max_tokens")
	}
}

func (r *REPL) validateOrRollback(ctx context.Context, name string, rollback func()) {
	p, err := providers.New(name, providers.Options(r.Cfg.Provider(name)))
	if err != nil {
		r.Console.Warn("Could not perform validation: " + err.Error())
		return
	}
	ok, msg := p.Validate(ctx)
	if ok {
		r.Console.Notice("✓ " + msg)
		return
	}
	r.Console.Error("Validation failed: " + msg)
	fmt.Fprint(r.out, "Save anyway? (y/n): ")
	if strings.ToLower(r.Console.readLine()) != "y" {
		rollback()
		r.Console.Warn("Changes discarded.")
		return
	}
	r.Console.Warn("Warning: saving potentially invalid configuration.")
}

func knownProvider(name string) bool {
	for _, known := range providers.Names() {
		if name == known {
			return true
		}
	}
	return false
}

func (r *REPL) debugCmd(parts []string) {
	limit := 1
	if len(parts) > 1 {
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			r.Console.Error("Invalid debug history limit: " + parts[1])
			return
		}
		limit = n
	}
	exchanges := r.Debug.Last(limit)
	if len(exchanges) == 0 {
		r.Console.Warn("No interaction data available yet.")
		return
	}
	for i, e := range exchanges {
		raw, _ := json.MarshalIndent(e, "", "  ")
		// Expand escaped newlines so task payloads read naturally.
		readable := strings.ReplaceAll(string(raw), `\n`, "\n")
		r.Console.panel(fmt.Sprintf("Debug: Exchange %d", i+1), readable)
	}
}

func (r *REPL) historyCmd(ctx context.Context, parts []string) {
	limit := 10
	if len(parts) > 1 {
		if strings.EqualFold(parts[1], "all") {
			limit = 0
		} else {
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				r.Console.Error("Invalid history limit: " + parts[1])
				return
			}
			limit = n
		}
	}
	entries, err := r.Store.History(ctx, limit)
	if err != nil {
		r.Console.Error("Failed to load history: " + err.Error())
		return
	}
	if len(entries) == 0 {
		r.Console.Warn("No session history yet.")
		return
	}
	var sb strings.Builder
	for _, e := range entries {
		content := strings.ReplaceAll(e.Content, "\n", " ")
		if len(content) > 150 {
			content = content[:150] + "..."
		}
		fmt.Fprintf(&sb, "%s  %-9s  %s\n", e.CreatedAt.Format("15:04:05"), e.Role, content)
	}
	r.Console.panel("Session History", strings.TrimRight(sb.String(), "\n"))
}

func (r *REPL) sessionCmd(ctx context.Context, parts []string) {
	active, err := r.Store.ActiveSession(ctx)
	if err != nil {
		r.Console.Error("Failed to read active session: " + err.Error())
		return
	}
	if len(parts) < 2 {
		r.Console.printf("Active session: %s", titleStyle.Render(active))
		r.Console.printf("Subcommands: list, new, load, delete, rename")
		return
	}
	switch strings.ToLower(parts[1]) {
	case "list":
		names, err := r.Store.Sessions(ctx)
		if err != nil {
			r.Console.Error("Failed to list sessions: " + err.Error())
			return
		}
		r.Console.printf("%s", titleStyle.Render("Available Sessions:"))
		for _, name := range names {
			marker := "  "
			if name == active {
				marker = "* "
			}
			r.Console.printf(" %s%s", marker, name)
		}
	case "new":
		name := fmt.Sprintf("session_%d", time.Now().Unix())
		if len(parts) > 2 {
			name = parts[2]
		}
		if err := r.Store.SetActiveSession(ctx, name); err != nil {
			r.Console.Error("Failed to start session: " + err.Error())
			return
		}
		r.Console.Notice("Started new session: " + name)
	case "load":
		if len(parts) < 3 {
			r.Console.Error("Usage: /session load <name>")
			return
		}
		names, err := r.Store.Sessions(ctx)
		if err != nil {
			r.Console.Error("Failed to list sessions: " + err.Error())
			return
		}
		for _, name := range names {
			if name == parts[2] {
				if err := r.Store.SetActiveSession(ctx, name); err != nil {
					r.Console.Error("Failed to switch session: " + err.Error())
					return
				}
				r.Console.Notice("Switched to session: " + name)
				return
			}
		}
		r.Console.Error("Session not found: " + parts[2])
	case "delete":
		if len(parts) < 3 {
			r.Console.Error("Usage: /session delete <name>")
			return
		}
		if err := r.Store.DeleteSession(ctx, parts[2]); err != nil {
			r.Console.Error("Delete failed: " + err.Error())
			return
		}
		r.Console.Warn("Deleted session: " + parts[2])
	case "rename":
		if len(parts) < 3 {
			r.Console.Error("Usage: /session rename <new_name>")
			return
		}
		if err := r.Store.RenameSession(ctx, active, parts[2]); err != nil {
			r.Console.Error("Rename failed: " + err.Error())
			return
		}
		r.Console.Notice("Renamed session to: " + parts[2])
	default:
		r.Console.Error("Unknown subcommand: " + parts[1])
	}
}
