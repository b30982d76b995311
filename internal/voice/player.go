package voice

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// CmdPlayer pipes synthesized audio into an external player binary.
// The first of ffplay/mpv/mpg123 found on PATH wins.
type CmdPlayer struct {
	binary string
	args   []string
}

var playerCandidates = []struct {
	binary string
	args   []string
}{
	{"ffplay", []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-"}},
	{"mpv", []string{"--no-video", "--really-quiet", "-"}},
	{"mpg123", []string{"-q", "-"}},
}

// NewCmdPlayer probes PATH for a usable player. Returns nil when none is
// installed; callers treat a nil player as speech unavailable.
func NewCmdPlayer() *CmdPlayer {
	for _, c := range playerCandidates {
		if _, err := exec.LookPath(c.binary); err == nil {
			return &CmdPlayer{binary: c.binary, args: c.args}
		}
	}
	return nil
}

func (p *CmdPlayer) Play(ctx context.Context, audio io.Reader) error {
	cmd := exec.CommandContext(ctx, p.binary, p.args...)
	cmd.Stdin = audio
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w", p.binary, err)
	}
	return nil
}
