package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mavrk/pilot/internal/config"
	"github.com/mavrk/pilot/internal/cost"
	"github.com/mavrk/pilot/internal/providers"
	"github.com/mavrk/pilot/internal/task"
)

type fakeSettings struct {
	provider   string
	policy     config.RunPolicy
	planning   bool
	fast       bool
	mission    bool
	voice      bool
	newline    bool
	visibility bool
	web        bool
}

func (s *fakeSettings) ActiveProvider() string       { return s.provider }
func (s *fakeSettings) RunPolicy() config.RunPolicy  { return s.policy }
func (s *fakeSettings) PlanningMode() bool           { return s.planning }
func (s *fakeSettings) FastMode() bool               { return s.fast }
func (s *fakeSettings) MissionMode() bool            { return s.mission }
func (s *fakeSettings) SetMissionMode(on bool) error { s.mission = on; return nil }
func (s *fakeSettings) VoiceMode() bool              { return s.voice }
func (s *fakeSettings) NewlineSupport() bool         { return s.newline }
func (s *fakeSettings) VisibilityAllowed() bool      { return s.visibility }
func (s *fakeSettings) WebBrowsingAllowed() bool     { return s.web }

type scriptedProvider struct {
	replies []string
	calls   int
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-model" }

func (p *scriptedProvider) Call(ctx context.Context, system string, payload []byte) (providers.Reply, error) {
	i := p.calls
	if i >= len(p.replies) {
		i = len(p.replies) - 1
	}
	p.calls++
	return providers.Reply{Text: p.replies[i]}, nil
}

func (p *scriptedProvider) Validate(ctx context.Context) (bool, string) { return true, "" }

type recordingBuilder struct {
	texts    []string
	missions []*task.MissionContext
}

func (b *recordingBuilder) Build(ctx context.Context, text string, planOnly, fast bool, mission *task.MissionContext) (*task.Task, error) {
	b.texts = append(b.texts, text)
	b.missions = append(b.missions, mission)
	return &task.Task{Mode: "apply", Instruction: text, RawInput: text, MissionData: mission}, nil
}

type fakeWeb struct{}

func (fakeWeb) Search(ctx context.Context, query string) string { return "results for " + query }
func (fakeWeb) Browse(ctx context.Context, url string) string   { return "content of " + url }

type recordingUI struct {
	notices  []string
	warns    []string
	errs     []string
	verdicts []Verdict
	decided  int
	confirm  bool
}

func (u *recordingUI) Status(label, provider string)       {}
func (u *recordingUI) Usage(in, out int, callCost float64) {}
func (u *recordingUI) Thinking(raw, structured string)     {}
func (u *recordingUI) AgentSays(msg string)                {}
func (u *recordingUI) Plan(plan string)                    {}
func (u *recordingUI) Critique(critique string)            {}
func (u *recordingUI) Changes(changes []Change)            {}
func (u *recordingUI) Commands(commands []Command)         {}
func (u *recordingUI) CommandOutput(res CommandResult)     {}
func (u *recordingUI) Applied(c Change)                    {}
func (u *recordingUI) Notice(msg string)                   { u.notices = append(u.notices, msg) }
func (u *recordingUI) Warn(msg string)                     { u.warns = append(u.warns, msg) }
func (u *recordingUI) Error(msg string)                    { u.errs = append(u.errs, msg) }
func (u *recordingUI) ConfirmRun(c Command) bool           { return u.confirm }
func (u *recordingUI) Pause(msg string)                    {}

func (u *recordingUI) Decide() Verdict {
	if u.decided < len(u.verdicts) {
		v := u.verdicts[u.decided]
		u.decided++
		return v
	}
	u.decided++
	return Verdict{Kind: VerdictAccept}
}

type loopFixture struct {
	loop     *Loop
	settings *fakeSettings
	provider *scriptedProvider
	builder  *recordingBuilder
	ui       *recordingUI
	ran      []string
}

func newFixture(replies ...string) *loopFixture {
	f := &loopFixture{
		settings: &fakeSettings{provider: "scripted", policy: config.RunAsk},
		provider: &scriptedProvider{replies: replies},
		builder:  &recordingBuilder{},
		ui:       &recordingUI{},
	}
	f.loop = NewLoop(f.settings, func(string) (providers.Provider, error) { return f.provider, nil },
		f.builder, nil, fakeWeb{}, cost.NewStats(), NewDebugRing(10), f.ui)
	f.loop.speak = func(string) {}
	f.loop.searchProject = func(root, pattern string) string { return "src/app.go:1: " + pattern }
	f.loop.runCommand = func(ctx context.Context, command string) (CommandResult, error) {
		f.ran = append(f.ran, command)
		return CommandResult{Command: command, Stdout: "ok\n"}, nil
	}
	return f
}

func respJSON(t *testing.T, r Response) string {
	t.Helper()
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func errsContain(msgs []string, sub string) bool {
	for _, m := range msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

func TestMissionCompletesOnMarker(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(
		respJSON(t, Response{Plan: "step one", Changes: []Change{{File: filepath.Join(dir, "a.txt"), Edited: "one"}}}),
		respJSON(t, Response{Plan: "done, MISSION COMPLETE", Changes: []Change{{File: filepath.Join(dir, "b.txt"), Edited: "two"}}}),
	)
	f.settings.mission = true

	f.loop.Handle(context.Background(), "build the thing", Flags{Yes: true})

	if f.provider.calls != 2 {
		t.Errorf("calls = %d, want 2", f.provider.calls)
	}
	if f.settings.mission {
		t.Error("mission mode not disabled on completion")
	}
	for _, name := range []string{"a.txt", "b.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestMissionStepBound(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(
		respJSON(t, Response{Plan: "keep going", Changes: []Change{{File: filepath.Join(dir, "x.txt"), Edited: "x"}}}),
	)
	f.settings.mission = true
	f.loop.MaxSteps = 3

	f.loop.Handle(context.Background(), "never-ending", Flags{Yes: true})

	if f.provider.calls != 3 {
		t.Errorf("calls = %d, want 3", f.provider.calls)
	}
	if !errsContain(f.ui.errs, "Stopped after 3 steps") {
		t.Errorf("missing step-bound error: %v", f.ui.errs)
	}
	if f.settings.mission {
		t.Error("mission mode not disabled at step bound")
	}
}

func TestParseErrorSelfHealInMission(t *testing.T) {
	f := newFixture(
		"this is not json at all",
		respJSON(t, Response{Plan: "recovered"}),
	)
	f.settings.mission = true

	f.loop.Handle(context.Background(), "go", Flags{Yes: true})

	if len(f.builder.missions) != 2 {
		t.Fatalf("builds = %d, want 2", len(f.builder.missions))
	}
	if f.builder.missions[1] == nil || f.builder.missions[1].Error == "" {
		t.Errorf("second cycle missing error context: %+v", f.builder.missions[1])
	}
}

func TestParseErrorSurfacedOutsideMission(t *testing.T) {
	f := newFixture("still not json")

	f.loop.Handle(context.Background(), "go", Flags{})

	if f.provider.calls != 1 {
		t.Errorf("calls = %d, want 1", f.provider.calls)
	}
	if !errsContain(f.ui.errs, "Failed to parse response") {
		t.Errorf("missing parse error: %v", f.ui.errs)
	}
}

func TestSubstepPrecedenceFilesFirst(t *testing.T) {
	dir := t.TempDir()
	wanted := filepath.Join(dir, "ctx.txt")
	if err := os.WriteFile(wanted, []byte("context body"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := newFixture(
		respJSON(t, Response{RequestFiles: []string{wanted}, WebSearch: "ignored", SearchProject: "also ignored"}),
		respJSON(t, Response{Plan: "thanks"}),
	)
	f.settings.mission = true
	f.settings.visibility = true
	f.settings.web = true

	f.loop.Handle(context.Background(), "analyze", Flags{Yes: true})

	if len(f.builder.missions) != 2 {
		t.Fatalf("builds = %d, want 2", len(f.builder.missions))
	}
	mc := f.builder.missions[1]
	if mc == nil || !strings.Contains(mc.Files, "context body") {
		t.Errorf("file context not delivered: %+v", mc)
	}
	if mc.WebResults != "" || mc.ProjectSearch != "" {
		t.Errorf("lower-priority sub-steps ran: %+v", mc)
	}
}

func TestRequestFilesMissingFileInlineError(t *testing.T) {
	f := newFixture(
		respJSON(t, Response{RequestFiles: []string{"no/such/file.go"}}),
		respJSON(t, Response{Plan: "ok"}),
	)
	f.settings.mission = true
	f.settings.visibility = true

	f.loop.Handle(context.Background(), "analyze", Flags{Yes: true})

	mc := f.builder.missions[1]
	if mc == nil || !strings.Contains(mc.Files, "Error: File not found.") {
		t.Errorf("missing inline error marker: %+v", mc)
	}
}

func TestRequestFilesVisibilityDenied(t *testing.T) {
	f := newFixture(
		respJSON(t, Response{RequestFiles: []string{"secret.go"}}),
		respJSON(t, Response{Plan: "understood"}),
	)
	f.settings.mission = true

	f.loop.Handle(context.Background(), "analyze", Flags{Yes: true})

	if len(f.builder.texts) != 2 {
		t.Fatalf("builds = %d, want 2", len(f.builder.texts))
	}
	if !strings.Contains(f.builder.texts[1], "Permission denied") ||
		!strings.Contains(f.builder.texts[1], "/visibility") {
		t.Errorf("denied notice not appended: %q", f.builder.texts[1])
	}
	if f.builder.missions[1] != nil {
		t.Error("denied request must not carry mission context")
	}
}

func TestWebSearchDenied(t *testing.T) {
	f := newFixture(
		respJSON(t, Response{WebSearch: "latest release"}),
		respJSON(t, Response{Plan: "fine"}),
	)
	f.settings.mission = true

	f.loop.Handle(context.Background(), "check", Flags{Yes: true})

	if !strings.Contains(f.builder.texts[1], "Web browsing is currently DISABLED") ||
		!strings.Contains(f.builder.texts[1], "/web") {
		t.Errorf("denied notice not appended: %q", f.builder.texts[1])
	}
}

func TestWebSearchDelivered(t *testing.T) {
	f := newFixture(
		respJSON(t, Response{WebSearch: "go 1.23 changes"}),
		respJSON(t, Response{Plan: "synthesized"}),
	)
	f.settings.mission = true
	f.settings.web = true

	f.loop.Handle(context.Background(), "check", Flags{Yes: true})

	mc := f.builder.missions[1]
	if mc == nil || !strings.Contains(mc.WebResults, "results for go 1.23 changes") {
		t.Errorf("web results not delivered: %+v", mc)
	}
}

func TestSearchProjectInPlanOnlyTurn(t *testing.T) {
	f := newFixture(
		respJSON(t, Response{SearchProject: "handleRequest"}),
		respJSON(t, Response{Plan: "found it"}),
	)

	f.loop.Handle(context.Background(), "where is the handler", Flags{Plan: true, Yes: true})

	mc := f.builder.missions[1]
	if mc == nil || !strings.Contains(mc.ProjectSearch, "handleRequest") {
		t.Errorf("project search not delivered: %+v", mc)
	}
}

func TestSubstepIgnoredOutsideMissionAndPlan(t *testing.T) {
	f := newFixture(respJSON(t, Response{SearchProject: "pattern", Plan: "p"}))

	f.loop.Handle(context.Background(), "normal turn", Flags{Yes: true})

	if f.provider.calls != 1 {
		t.Errorf("calls = %d, want 1 (no sub-step outside mission/plan)", f.provider.calls)
	}
}

func TestRefinementAppendsFeedback(t *testing.T) {
	f := newFixture(
		respJSON(t, Response{Plan: "first draft"}),
		respJSON(t, Response{Plan: "second draft"}),
	)
	f.ui.verdicts = []Verdict{{Kind: VerdictRefine, Refine: "make it blue"}}

	f.loop.Handle(context.Background(), "style the page", Flags{})

	if len(f.builder.texts) != 2 {
		t.Fatalf("builds = %d, want 2", len(f.builder.texts))
	}
	if !strings.Contains(f.builder.texts[1], "User Feedback: make it blue") {
		t.Errorf("feedback not appended: %q", f.builder.texts[1])
	}
}

func TestRejectHaltsWithoutSideEffects(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "never.txt")
	f := newFixture(respJSON(t, Response{Plan: "p", Changes: []Change{{File: target, Edited: "x"}}}))
	f.ui.verdicts = []Verdict{{Kind: VerdictReject}}

	f.loop.Handle(context.Background(), "do it", Flags{})

	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Error("rejected change was applied")
	}
	if f.provider.calls != 1 {
		t.Errorf("calls = %d, want 1", f.provider.calls)
	}
}

func TestRunPolicyNeverSkipsCommands(t *testing.T) {
	f := newFixture(respJSON(t, Response{Plan: "p", Commands: []Command{{Command: "rm -rf /", Reason: "bad idea"}}}))
	f.settings.policy = config.RunNever

	f.loop.Handle(context.Background(), "go", Flags{Yes: true})

	if len(f.ran) != 0 {
		t.Errorf("commands ran under never policy: %v", f.ran)
	}
	if !errsContain(f.ui.warns, "skipped") {
		t.Errorf("missing skip notice: %v", f.ui.warns)
	}
}

func TestRunPolicyAskRespectsConfirmation(t *testing.T) {
	f := newFixture(respJSON(t, Response{Plan: "p", Commands: []Command{{Command: "ls"}}}))
	f.ui.confirm = false

	f.loop.Handle(context.Background(), "go", Flags{})

	if len(f.ran) != 0 {
		t.Errorf("declined command ran: %v", f.ran)
	}

	f = newFixture(respJSON(t, Response{Plan: "p", Commands: []Command{{Command: "ls"}}}))
	f.ui.confirm = true

	f.loop.Handle(context.Background(), "go", Flags{})

	if len(f.ran) != 1 || f.ran[0] != "ls" {
		t.Errorf("confirmed command did not run: %v", f.ran)
	}
}

func TestMissionCommandFeedback(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(
		respJSON(t, Response{
			Plan:     "run tests",
			Changes:  []Change{{File: filepath.Join(dir, "f.txt"), Edited: "v1"}},
			Commands: []Command{{Command: "go test ./...", Reason: "verify"}},
		}),
		respJSON(t, Response{Plan: "MISSION COMPLETE", Changes: []Change{{File: filepath.Join(dir, "g.txt"), Edited: "v2"}}}),
	)
	f.settings.mission = true

	f.loop.Handle(context.Background(), "fix the tests", Flags{Yes: true})

	if len(f.ran) != 1 {
		t.Fatalf("commands run = %v", f.ran)
	}
	if !strings.Contains(f.builder.texts[1], "Command results for `go test ./...`") {
		t.Errorf("command feedback not in continuation text: %q", f.builder.texts[1])
	}
}

func TestMismatchSelfHealInMission(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "code.go")
	if err := os.WriteFile(target, []byte("real content"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := newFixture(
		respJSON(t, Response{Plan: "edit", Changes: []Change{{File: target, Original: "stale", Edited: "new"}}}),
		respJSON(t, Response{Plan: "MISSION COMPLETE", Changes: []Change{{File: target, Original: "real", Edited: "fixed"}}}),
	)
	f.settings.mission = true

	f.loop.Handle(context.Background(), "edit code", Flags{Yes: true})

	mc := f.builder.missions[1]
	if mc == nil || !strings.Contains(mc.Error, "Mismatch") {
		t.Errorf("mismatch not fed back: %+v", mc)
	}
	got, _ := os.ReadFile(target)
	if string(got) != "fixed content" {
		t.Errorf("content = %q", got)
	}
}

func TestNothingToApplyIsTerminal(t *testing.T) {
	f := newFixture(respJSON(t, Response{Plan: "just a plan"}))

	f.loop.Handle(context.Background(), "tell me", Flags{Yes: true})

	if f.provider.calls != 1 {
		t.Errorf("calls = %d, want 1", f.provider.calls)
	}
	if !errsContain(f.ui.warns, "No changes or commands to apply.") {
		t.Errorf("missing terminal notice: %v", f.ui.warns)
	}
}

func TestNewlineExpansion(t *testing.T) {
	f := newFixture(respJSON(t, Response{Plan: "p"}))
	f.settings.newline = true

	f.loop.Handle(context.Background(), `line one\nline two`, Flags{Yes: true})

	if f.builder.texts[0] != "line one\nline two" {
		t.Errorf("text = %q", f.builder.texts[0])
	}
}
