package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// command wraps exec.Cmd and keeps stderr so a failing run can report what
// ffmpeg printed.
type command struct {
	*exec.Cmd
	stderr *bytes.Buffer
}

func newCommand(ctx context.Context, name string, args ...string) *command {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &command{Cmd: cmd, stderr: stderr}
}

// wrap annotates err with the tool name and the tail of its stderr.
func (c *command) wrap(err error) error {
	msg := strings.TrimSpace(c.stderr.String())
	if len(msg) > 512 {
		msg = msg[len(msg)-512:]
	}
	if msg == "" {
		return fmt.Errorf("%s: %w", c.Path, err)
	}
	return fmt.Errorf("%s: %w: %s", c.Path, err, msg)
}
