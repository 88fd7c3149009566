package sound

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// CommandPlayer runs an external player process per clip, e.g. "aplay -q".
// Cancellation kills the process.
type CommandPlayer struct {
	name   string
	args   []string
	logger zerolog.Logger
}

func NewCommandPlayer(command string, logger zerolog.Logger) (*CommandPlayer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("empty player command")
	}
	return &CommandPlayer{
		name:   fields[0],
		args:   fields[1:],
		logger: logger.With().Str("component", "command").Logger(),
	}, nil
}

// Initialize checks that the player binary exists.
func (p *CommandPlayer) Initialize() error {
	if _, err := exec.LookPath(p.name); err != nil {
		return fmt.Errorf("player command %q: %w", p.name, err)
	}
	return nil
}

func (p *CommandPlayer) Terminate() {}

func (p *CommandPlayer) Play(ctx context.Context, clip string) error {
	args := make([]string, 0, len(p.args)+1)
	args = append(args, p.args...)
	args = append(args, clip)

	cmd := exec.CommandContext(ctx, p.name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.name, err)
	}
	p.logger.Debug().Int("pid", cmd.Process.Pid).Str("clip", clip).Msg("player started")

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		return fmt.Errorf("%s: %w: %s", p.name, err, msg)
	}
	return nil
}
