package agent

import (
	"context"
	"os/exec"
	"runtime"
	"time"
)

// speechCommand is swapped in tests.
var speechCommand = func() string {
	if runtime.GOOS == "darwin" {
		return "say"
	}
	return "espeak"
}

// Speak voices text through the platform TTS engine in the background.
// Failures are swallowed; the side channel never affects the turn.
func Speak(text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		_ = exec.CommandContext(ctx, speechCommand(), text).Run()
	}()
}
