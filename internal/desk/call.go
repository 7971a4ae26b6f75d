package desk

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/agentdesk/internal/office"
	"github.com/ShayCichocki/agentdesk/internal/retry"
	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// CallOptions are the optional parts of a resilient call.
type CallOptions struct {
	// System is appended to the provider's system prompt.
	System string
	// Model pins the model unless an escalation applies.
	Model string
	// Timeout bounds each attempt. Zero uses the configured default.
	Timeout time.Duration
	// DisplayName is shown on the worker and in logs.
	DisplayName string
	ProjectID   string
	Task        string
}

// Reply is the outcome of a resilient call that produced text.
type Reply struct {
	Text     string
	Role     models.Role
	Model    string
	Provider string
	Attempts int
	WorkerID string
}

// Call runs prompt as role on the role's office and waits for the result.
// It returns retry.ErrAgentUnavailable when every provider was exhausted.
// Cancelling ctx stops waiting and cancels the in-flight attempt.
func (d *Desk) Call(ctx context.Context, role models.Role, prompt string, opts CallOptions) (Reply, error) {
	spec, ok := role.Spec()
	if !ok {
		return Reply{}, fmt.Errorf("unknown role %q", role)
	}

	req := retry.Request{
		Role:        role,
		Prompt:      prompt,
		System:      opts.System,
		Model:       opts.Model,
		Timeout:     opts.Timeout,
		DisplayName: opts.DisplayName,
		ProjectID:   opts.ProjectID,
		Task:        opts.Task,
	}
	description := opts.DisplayName
	if description == "" {
		description = string(role)
	}

	var result retry.Result
	task := office.Task{
		ID:          uuid.New().String()[:8],
		Description: description,
		Model:       opts.Model,
		Run: func(poolCtx context.Context, worker models.Worker) (string, error) {
			runCtx, cancel := context.WithCancel(poolCtx)
			defer cancel()
			stop := context.AfterFunc(ctx, cancel)
			defer stop()

			res, err := d.failover.Call(runCtx, req)
			result = res
			if err != nil {
				return "", err
			}
			return res.Text, nil
		},
	}

	workerID, ticket, err := d.offices.AssignTask(spec.Office, task)
	if err != nil {
		return Reply{}, err
	}
	if workerID == "" {
		log.Printf("[desk] %s call queued in %s office", role, spec.Office)
	}

	text, err := ticket.Wait(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Reply{}, ctxErr
		}
		return Reply{}, err
	}
	return Reply{
		Text:     text,
		Role:     result.Role,
		Model:    result.Model,
		Provider: result.Provider,
		Attempts: result.Attempts,
		WorkerID: ticket.WorkerID(),
	}, nil
}
