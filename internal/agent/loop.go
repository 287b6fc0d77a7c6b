// Package agent implements the orchestration core: the task → provider →
// interpreter cycle, the change applier and the policy-gated command
// executor. The loop is an explicit state machine; mission continuations,
// refinements and self-heal retries all re-enter the THINKING phase of the
// same for-loop instead of recursing.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mavrk/pilot/internal/config"
	"github.com/mavrk/pilot/internal/cost"
	"github.com/mavrk/pilot/internal/providers"
	"github.com/mavrk/pilot/internal/state"
	"github.com/mavrk/pilot/internal/task"
	"github.com/mavrk/pilot/internal/workspace"
)

// DefaultMaxSteps bounds autonomous continuation. A mission that has not
// produced the completion marker after this many model calls is stopped and
// mission mode is switched off.
const DefaultMaxSteps = 32

// Settings is the slice of the config store the loop consults each turn.
// *config.Config satisfies it.
type Settings interface {
	ActiveProvider() string
	RunPolicy() config.RunPolicy
	PlanningMode() bool
	FastMode() bool
	MissionMode() bool
	SetMissionMode(on bool) error
	VoiceMode() bool
	NewlineSupport() bool
	VisibilityAllowed() bool
	WebBrowsingAllowed() bool
}

// TaskBuilder assembles the JSON task for one model call.
type TaskBuilder interface {
	Build(ctx context.Context, text string, planOnly, fast bool, mission *task.MissionContext) (*task.Task, error)
}

// History records the compact per-turn summary. *state.Store satisfies it.
type History interface {
	Add(ctx context.Context, entry state.Entry) error
}

// WebClient is the outward search/browse capability.
type WebClient interface {
	Search(ctx context.Context, query string) string
	Browse(ctx context.Context, url string) string
}

// VerdictKind is the user's decision at the review prompt.
type VerdictKind int

const (
	VerdictAccept VerdictKind = iota
	VerdictReject
	VerdictRefine
)

type Verdict struct {
	Kind   VerdictKind
	Refine string
}

// UI is the console surface the loop drives. The loop decides what to show
// and when to pause; rendering is entirely the implementation's concern.
type UI interface {
	Status(label, provider string)
	Usage(inputTokens, outputTokens int, callCost float64)
	Thinking(raw, structured string)
	AgentSays(msg string)
	Plan(plan string)
	Critique(critique string)
	Changes(changes []Change)
	Commands(commands []Command)
	CommandOutput(res CommandResult)
	Applied(c Change)
	Notice(msg string)
	Warn(msg string)
	Error(msg string)
	Decide() Verdict
	ConfirmRun(c Command) bool
	Pause(msg string)
}

// Flags are the per-invocation command line switches.
type Flags struct {
	Plan bool
	Yes  bool
	Fast bool
}

// Loop drives one user turn through THINKING → PARSE → SUBSTEP → PRESENT →
// APPLY, including mission continuations.
type Loop struct {
	Settings Settings
	Provider func(name string) (providers.Provider, error)
	Builder  TaskBuilder
	History  History
	Web      WebClient
	Stats    *cost.Stats
	Debug    *DebugRing
	UI       UI
	Prompt   string
	Root     string
	MaxSteps int

	// swapped in tests
	searchProject func(root, pattern string) string
	runCommand    func(ctx context.Context, command string) (CommandResult, error)
	speak         func(text string)
	readFile      func(path string) ([]byte, error)
}

func NewLoop(settings Settings, provider func(string) (providers.Provider, error), builder TaskBuilder, history History, web WebClient, stats *cost.Stats, debug *DebugRing, ui UI) *Loop {
	return &Loop{
		Settings:      settings,
		Provider:      provider,
		Builder:       builder,
		History:       history,
		Web:           web,
		Stats:         stats,
		Debug:         debug,
		UI:            ui,
		Prompt:        SystemPrompt(),
		Root:          ".",
		MaxSteps:      DefaultMaxSteps,
		searchProject: workspace.Search,
		runCommand:    RunCommand,
		speak:         Speak,
		readFile:      os.ReadFile,
	}
}

// turnState is the mutable context threaded between loop iterations. text is
// the working instruction: refinements and mission command feedback append
// to it, sub-step results travel separately in mission so each cycle sees
// fresh context without the instruction growing unboundedly.
type turnState struct {
	text    string
	mission *task.MissionContext
}

type outcome int

const (
	outcomeHalt outcome = iota
	outcomeContinue
)

// Handle runs one user turn to completion, including any autonomous
// continuations. Cancellation of ctx aborts the in-flight model call and
// halts the turn without touching any state.
func (l *Loop) Handle(ctx context.Context, text string, flags Flags) {
	st := turnState{text: text}
	maxSteps := l.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	for step := 0; step < maxSteps; step++ {
		if l.turn(ctx, &st, flags) == outcomeHalt {
			return
		}
	}
	l.UI.Error(fmt.Sprintf("Stopped after %d steps without completion.", maxSteps))
	if l.Settings.MissionMode() {
		_ = l.Settings.SetMissionMode(false)
	}
}

func (l *Loop) turn(ctx context.Context, st *turnState, flags Flags) outcome {
	if l.Settings.NewlineSupport() {
		st.text = strings.ReplaceAll(st.text, `\n`, "\n")
	}

	providerName := l.Settings.ActiveProvider()
	provider, err := l.Provider(providerName)
	if err != nil {
		l.UI.Error(fmt.Sprintf("Error initializing provider: %v", err))
		return outcomeHalt
	}

	planOnly := flags.Plan || l.Settings.PlanningMode()
	fast := flags.Fast || l.Settings.FastMode()
	mission := l.Settings.MissionMode()

	l.UI.Status(statusLabel(planOnly, st.mission), providerName)

	// THINKING
	t, err := l.Builder.Build(ctx, st.text, planOnly, fast, st.mission)
	if err != nil {
		l.UI.Error(fmt.Sprintf("Error building task: %v", err))
		return outcomeHalt
	}
	payload, err := json.Marshal(t)
	if err != nil {
		l.UI.Error(fmt.Sprintf("Error encoding task: %v", err))
		return outcomeHalt
	}

	reply, err := provider.Call(ctx, l.Prompt, payload)
	if l.Debug != nil {
		l.Debug.Record(Exchange{UserInput: st.text, TaskSent: string(payload), RawResponse: reply.Text})
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			l.UI.Warn("Interrupted.")
		} else {
			l.UI.Error(fmt.Sprintf("Provider error: %v", err))
		}
		return outcomeHalt
	}

	if l.Stats != nil {
		callCost := l.Stats.Record(provider.Model(), reply.Usage.InputTokens, reply.Usage.OutputTokens)
		l.UI.Usage(reply.Usage.InputTokens, reply.Usage.OutputTokens, callCost)
	}

	// PARSE
	resp, err := ParseResponse(reply.Text)
	if err != nil {
		if mission {
			st.mission = &task.MissionContext{Error: err.Error()}
			return outcomeContinue
		}
		l.UI.Error(fmt.Sprintf("Failed to parse response: %v", err))
		return outcomeHalt
	}

	// SUBSTEP: context requests are honored only in mission or plan-only
	// turns, one per cycle. request_files wins over web, web over
	// search_project.
	if (mission || planOnly) && resp.WantsContext() {
		l.substep(ctx, st, resp)
		return outcomeContinue
	}

	// PRESENT
	quiet := st.mission != nil && resp.Response == "" && len(resp.Changes) == 0 && len(resp.Commands) == 0
	if fast && len(resp.Changes) > 0 {
		quiet = true
	}
	if !quiet && (reply.Reasoning != "" || resp.Thought != "") {
		l.UI.Thinking(reply.Reasoning, resp.Thought)
	}
	if resp.Response != "" {
		l.UI.AgentSays(resp.Response)
		if l.Settings.VoiceMode() {
			l.speak(resp.Response)
		}
	}
	plan := resp.Plan
	if plan == "" {
		plan = "No plan provided"
	}
	if !(fast && (len(resp.Changes) > 0 || len(resp.Commands) > 0)) {
		l.UI.Plan(plan)
	}
	if l.Settings.VoiceMode() && resp.Response == "" {
		l.speak(plan)
	}
	if resp.SelfCritique != "" {
		l.UI.Critique(resp.SelfCritique)
	}
	l.UI.Changes(resp.Changes)
	if len(resp.Changes) > 0 && !flags.Yes && !l.Settings.FastMode() {
		l.UI.Pause("Press Enter to continue to options...")
	}
	if len(resp.Commands) > 0 {
		l.UI.Commands(resp.Commands)
	}

	var verdict Verdict
	if flags.Yes {
		l.UI.Notice("Auto-applying changes and commands (--yes)")
	} else {
		verdict = l.UI.Decide()
	}
	switch verdict.Kind {
	case VerdictReject:
		l.UI.Warn("Rejected.")
		return outcomeHalt
	case VerdictRefine:
		l.UI.Notice("Refining with instruction: " + verdict.Refine)
		st.text += "\n\nUser Feedback: " + verdict.Refine
		st.mission = nil
		return outcomeContinue
	}

	// APPLY: commands first, then file changes.
	if len(resp.Commands) > 0 {
		l.execCommands(ctx, st, resp.Commands, flags, mission)
	}

	if len(resp.Changes) == 0 {
		if len(resp.Commands) == 0 {
			l.UI.Warn("No changes or commands to apply.")
		}
		return outcomeHalt
	}

	if err := ApplyChanges(resp.Changes); err != nil {
		msg := fmt.Sprintf("Error applying changes: %v", err)
		l.UI.Error(msg)
		if mission {
			l.UI.Warn("Retrying autonomously...")
			st.mission = &task.MissionContext{Error: msg}
			return outcomeContinue
		}
		return outcomeHalt
	}
	for _, c := range resp.Changes {
		l.UI.Applied(c)
	}
	if !fast {
		l.UI.Pause("Changes applied. Press Enter to return to prompt...")
	}

	l.record(ctx, st.text, plan, resp)

	if fast && !mission {
		l.UI.Notice("Skipping review (Fast Mode)")
		return outcomeHalt
	}

	// Mission continuity.
	if mission {
		if resp.MissionComplete() {
			l.UI.Notice("Mission Completed Successfully.")
			_ = l.Settings.SetMissionMode(false)
			return outcomeHalt
		}
		l.UI.Notice("Continuing Mission...")
		st.mission = nil
		return outcomeContinue
	}
	return outcomeHalt
}

func statusLabel(planOnly bool, mission *task.MissionContext) string {
	switch {
	case mission != nil && mission.Error != "":
		return "Recovering from Error..."
	case mission != nil && mission.Files != "":
		return "Analyzing Requested Files..."
	case mission != nil && mission.WebResults != "":
		return "Synthesizing Web Results..."
	case mission != nil && mission.ProjectSearch != "":
		return "Analyzing Project Search..."
	case planOnly:
		return "Deeply Planning..."
	default:
		return "Thinking..."
	}
}

// substep services exactly one context request and prepares the next cycle.
func (l *Loop) substep(ctx context.Context, st *turnState, resp *Response) {
	if len(resp.RequestFiles) > 0 {
		if !l.Settings.VisibilityAllowed() {
			st.text = fmt.Sprintf("%s\n\nError: Permission denied. You requested %v but full visibility is currently DISABLED. Ask the user to run `/visibility` to grant permission.", st.text, resp.RequestFiles)
			st.mission = nil
			return
		}
		var sb strings.Builder
		for _, rf := range resp.RequestFiles {
			content, err := l.readFile(rf)
			if err != nil {
				fmt.Fprintf(&sb, "\n--- %s ---\nError: File not found.\n", rf)
				continue
			}
			fmt.Fprintf(&sb, "\n--- %s ---\n%s\n", rf, content)
		}
		l.UI.Notice(fmt.Sprintf("Agent requested %d files for context.", len(resp.RequestFiles)))
		st.mission = &task.MissionContext{Files: sb.String()}
		return
	}

	if resp.WebSearch != "" || resp.WebBrowse != "" {
		if !l.Settings.WebBrowsingAllowed() {
			st.text += "\n\nError: Web browsing is currently DISABLED. Ask the user to run `/web` to enable it if you need search or browsing capabilities."
			st.mission = nil
			return
		}
		var sb strings.Builder
		if resp.WebSearch != "" {
			l.UI.Notice("Agent is searching for: " + resp.WebSearch)
			fmt.Fprintf(&sb, "\nSearch Results for '%s':\n%s\n", resp.WebSearch, Scrub(l.Web.Search(ctx, resp.WebSearch)))
		}
		if resp.WebBrowse != "" {
			l.UI.Notice("Agent is browsing: " + resp.WebBrowse)
			fmt.Fprintf(&sb, "\nContent of %s:\n%s\n", resp.WebBrowse, Scrub(l.Web.Browse(ctx, resp.WebBrowse)))
		}
		st.mission = &task.MissionContext{WebResults: sb.String()}
		return
	}

	l.UI.Notice("Agent is searching project for: " + resp.SearchProject)
	st.mission = &task.MissionContext{ProjectSearch: l.searchProject(l.Root, resp.SearchProject)}
}

// execCommands applies the run policy. Non-zero exits are data, not errors;
// only a failure to start the shell is surfaced, and it never aborts the
// rest of the turn.
func (l *Loop) execCommands(ctx context.Context, st *turnState, commands []Command, flags Flags, mission bool) {
	policy := l.Settings.RunPolicy()
	switch {
	case policy == config.RunNever:
		l.UI.Warn("Command execution skipped (Run Policy: NEVER)")
	case policy == config.RunAlways || flags.Yes || mission:
		for _, c := range commands {
			l.UI.Notice("Running: " + c.Command)
			res, err := l.runCommand(ctx, c.Command)
			if err != nil {
				l.UI.Error(fmt.Sprintf("Error running command: %v", err))
				continue
			}
			l.UI.CommandOutput(res)
			if mission {
				st.text += "\n\n" + Scrub(res.Feedback())
			}
		}
	default: // ask
		for _, c := range commands {
			if !l.UI.ConfirmRun(c) {
				continue
			}
			res, err := l.runCommand(ctx, c.Command)
			if err != nil {
				l.UI.Error(fmt.Sprintf("Error running command: %v", err))
				continue
			}
			l.UI.CommandOutput(res)
		}
	}
}

// record persists the compact turn summary: the instruction as the user
// entry, the plan with confidence and change count as the assistant entry.
func (l *Loop) record(ctx context.Context, text, plan string, resp *Response) {
	if l.History == nil {
		return
	}
	now := time.Now()
	_ = l.History.Add(ctx, state.Entry{Role: "user", Content: text, CreatedAt: now})
	_ = l.History.Add(ctx, state.Entry{
		Role:       "assistant",
		Content:    plan,
		Changes:    len(resp.Changes),
		Confidence: resp.Confidence,
		CreatedAt:  now,
	})
}
