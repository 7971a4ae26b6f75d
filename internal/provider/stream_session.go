package provider

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"
)

// Claude Code stream-json event types.
const (
	streamEventSystem    = "system"
	streamEventAssistant = "assistant"
	streamEventResult    = "result"
	streamEventError     = "error"
)

// StreamSession runs the claude CLI with --output-format stream-json and
// accumulates assistant text from the event stream.
type StreamSession struct {
	// Binary is the CLI executable. Defaults to "claude".
	Binary string
	// Dir is the working directory for the subprocess.
	Dir string
	// ExtraArgs are appended before the prompt.
	ExtraArgs []string
}

// Name returns "stream".
func (s *StreamSession) Name() string {
	return "stream"
}

// sessionState is what one run of the event stream produced.
type sessionState struct {
	text       strings.Builder
	resultText string
	resultErr  bool
	signal     string
	signalKind Kind
	prompt     int64
	completion int64
	exact      bool
}

// Complete runs one session. Control events carrying rate-limit or usage
// limit text fail the call even when the process exits cleanly.
func (s *StreamSession) Complete(ctx context.Context, req Request) (Response, error) {
	binary := s.Binary
	if binary == "" {
		binary = "claude"
	}

	args := []string{
		"--output-format", "stream-json",
		"--print",
		"--verbose",
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.System != "" {
		args = append(args, "--append-system-prompt", req.System)
	}
	args = append(args, s.ExtraArgs...)
	args = append(args, "-p", req.Prompt)

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = s.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Response{}, fmt.Errorf("create stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Response{}, fmt.Errorf("start process: %w", err)
	}

	var st sessionState
	scanner := bufio.NewScanner(stdout)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)
	for scanner.Scan() {
		st.apply(scanner.Bytes())
	}
	scanErr := scanner.Err()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return Response{}, ctx.Err()
	}
	if st.signal != "" {
		return Response{}, &Error{Kind: st.signalKind, Err: fmt.Errorf("control event: %s", st.signal)}
	}

	text := st.text.String()
	if strings.TrimSpace(text) == "" {
		text = st.resultText
	}
	if st.resultErr {
		return Response{}, fmt.Errorf("session reported error: %s", st.resultText)
	}
	if waitErr != nil {
		msg := fmt.Sprintf("process exited with error: %v", waitErr)
		if errText := strings.TrimSpace(stderr.String()); errText != "" {
			msg += "; stderr: " + errText
		}
		return Response{}, fmt.Errorf("%s", msg)
	}
	if scanErr != nil {
		return Response{}, fmt.Errorf("read output: %w", scanErr)
	}

	resp := Response{Text: text, PromptTokens: st.prompt, CompletionTokens: st.completion, Exact: st.exact}
	return resp, nil
}

// apply folds one stream-json line into the session state.
func (st *sessionState) apply(line []byte) {
	if len(bytes.TrimSpace(line)) == 0 || !gjson.ValidBytes(line) {
		return
	}
	event := gjson.ParseBytes(line)

	switch event.Get("type").String() {
	case streamEventAssistant:
		event.Get("message.content").ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() == "text" {
				st.text.WriteString(block.Get("text").String())
			}
			return true
		})
		if s := event.Get("message"); s.Type == gjson.String {
			st.text.WriteString(s.String())
		}
	case streamEventResult:
		st.resultText = event.Get("result").String()
		st.resultErr = event.Get("is_error").Bool()
		if usage := event.Get("usage"); usage.Exists() {
			st.prompt = usage.Get("input_tokens").Int()
			st.completion = usage.Get("output_tokens").Int()
			st.exact = true
		}
		if ContainsHardLimit(st.resultText) {
			st.flag(KindHardLimit, st.resultText)
		}
	case streamEventSystem, streamEventError:
		for _, field := range []string{"error", "message", "subtype", "result"} {
			v := event.Get(field)
			if v.Type != gjson.String {
				continue
			}
			switch k := ClassifyMessage(v.String()); k {
			case KindRateLimited, KindHardLimit, KindBilling, KindAuth:
				st.flag(k, v.String())
			}
		}
	}
}

// flag records a control-event failure. A hard limit outranks anything seen earlier.
func (st *sessionState) flag(kind Kind, msg string) {
	if st.signal != "" && kind != KindHardLimit {
		return
	}
	st.signal = msg
	st.signalKind = kind
}
