package provider

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultMaxTurns bounds the agentic turns of a one-shot call.
const DefaultMaxTurns = 3

// OneShot runs `claude -p --max-turns N` with the prompt on stdin.
type OneShot struct {
	// Binary is the CLI executable. Defaults to "claude".
	Binary string
	// Dir is the working directory for the subprocess.
	Dir string
	// MaxTurns bounds the session. Defaults to DefaultMaxTurns.
	MaxTurns int
}

// Name returns "oneshot".
func (o *OneShot) Name() string {
	return "oneshot"
}

// Complete runs the subprocess to completion. A non-zero exit or empty
// stdout is a failure. Token counts are left for the dispatcher to estimate.
func (o *OneShot) Complete(ctx context.Context, req Request) (Response, error) {
	binary := o.Binary
	if binary == "" {
		binary = "claude"
	}
	turns := o.MaxTurns
	if turns <= 0 {
		turns = DefaultMaxTurns
	}

	args := []string{"-p", "--max-turns", strconv.Itoa(turns)}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.System != "" {
		args = append(args, "--append-system-prompt", req.System)
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = o.Dir
	cmd.Stdin = strings.NewReader(req.Prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return Response{}, fmt.Errorf("one-shot exited with error: %v: %s", err, msg)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return Response{}, ErrEmptyResponse
	}
	return Response{Text: text}, nil
}
