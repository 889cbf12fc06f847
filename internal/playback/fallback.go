package playback

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ExecPlayer plays audio files by running an external command, the
// escape hatch for containers the in-process decoders do not cover.
// The file path is appended to Args.
type ExecPlayer struct {
	// Command is the player binary, for example "ffplay" or "aplay".
	Command string
	// Args precede the file path, for example ["-nodisp", "-autoexit"].
	Args []string
}

var _ FallbackPlayer = (*ExecPlayer)(nil)

func (p *ExecPlayer) Play(ctx context.Context, path string, stop <-chan struct{}) error {
	if p.Command == "" {
		return errors.New("playback: no external player configured")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.Command, append(append([]string(nil), p.Args...), path)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("playback: start %s: %w", p.Command, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-stop:
		cancel()
		<-done // reap
		return nil
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("playback: %s: %w", p.Command, err)
		}
		return nil
	}
}
