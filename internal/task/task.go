// Package task assembles the self-contained request payload sent to a
// provider: the expanded instruction, inline file context, bounded session
// history and, in planning mode, a map of the project tree.
package task

// ContextFile is one file attached to a task, either with its content or
// with the error that prevented reading it.
type ContextFile struct {
	Path    string `json:"file"`
	Content string `json:"content,omitempty"`
	Err     string `json:"error,omitempty"`
}

// MissionContext carries the outcome of one autonomous sub-step into the
// next model call. Exactly one field is set; it is never persisted.
type MissionContext struct {
	Error         string `json:"error,omitempty"`
	Files         string `json:"files,omitempty"`
	WebResults    string `json:"web_results,omitempty"`
	ProjectSearch string `json:"project_search,omitempty"`
}

// Task is built fresh for every model call and immutable once sent.
type Task struct {
	Mode           string          `json:"mode"` // "plan" | "apply"
	Fast           bool            `json:"fast"`
	Instruction    string          `json:"instruction"`
	RawInput       string          `json:"raw_input"`
	ContextFiles   []ContextFile   `json:"context_files"`
	SessionHistory string          `json:"session_history"`
	MissionData    *MissionContext `json:"mission_data,omitempty"`
	ProjectMap     string          `json:"project_map,omitempty"`
}
