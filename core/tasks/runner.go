// Package tasks runs deferred agent work in the background: pending
// AgentTasks past their NotBefore time are replayed through the engine
// pipeline on a cron schedule.
package tasks

import (
	"context"
	"time"

	"github.com/mudler/xlog"
	"github.com/robfig/cron/v3"

	"github.com/herald-ai/herald/core/assembler"
	"github.com/herald-ai/herald/core/engine"
	"github.com/herald-ai/herald/core/types"
	models "github.com/herald-ai/herald/dbmodels"
)

type Runner struct {
	store  types.Store
	engine *engine.Engine
	cron   *cron.Cron
	spec   string
}

// NewRunner builds a task runner polling on the given cron spec
// (e.g. "@every 1m").
func NewRunner(store types.Store, eng *engine.Engine, spec string) *Runner {
	if spec == "" {
		spec = "@every 1m"
	}
	return &Runner{
		store:  store,
		engine: eng,
		cron:   cron.New(),
		spec:   spec,
	}
}

// Start schedules the polling loop. It returns after scheduling; the
// cron runs until Stop.
func (r *Runner) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.spec, func() {
		r.RunDue(ctx)
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

// RunDue processes every due pending task once. Task status moves
// pending -> running -> completed/failed and never back.
func (r *Runner) RunDue(ctx context.Context) {
	due, err := r.store.DueTasks(ctx, time.Now())
	if err != nil {
		xlog.Error("Listing due tasks failed", "error", err)
		return
	}

	for _, task := range due {
		r.runOne(ctx, task)
	}
}

func (r *Runner) runOne(ctx context.Context, task models.AgentTask) {
	if err := r.store.TransitionTask(ctx, task.ID, models.TaskRunning, ""); err != nil {
		// lost the race with another runner, or a bad transition
		xlog.Debug("Skipping task", "task", task.ID, "error", err)
		return
	}

	user, err := r.store.UserByID(ctx, task.UserID)
	if err != nil {
		r.fail(ctx, task, "task owner not found")
		return
	}

	conv, err := r.conversationFor(ctx, user, task)
	if err != nil {
		r.fail(ctx, task, err.Error())
		return
	}

	reply, err := r.engine.RunDirective(ctx, user, conv, "Follow up on this pending item: "+task.Description, assembler.ModeInteractive)
	if err != nil {
		r.fail(ctx, task, err.Error())
		return
	}

	if err := r.store.TransitionTask(ctx, task.ID, models.TaskCompleted, reply.Text); err != nil {
		xlog.Error("Completing task failed", "task", task.ID, "error", err)
		return
	}
	xlog.Info("Task completed", "task", task.ID, "user", task.UserID)
}

func (r *Runner) conversationFor(ctx context.Context, user *models.User, task models.AgentTask) (*models.Conversation, error) {
	if task.ConversationID != nil {
		if conv, err := r.store.ConversationByID(ctx, *task.ConversationID); err == nil {
			return conv, nil
		}
	}
	conv := &models.Conversation{
		UserID: user.ID,
		Title:  "Task: " + title(task.Description),
		Origin: models.ConversationOriginProactive,
	}
	if err := r.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *Runner) fail(ctx context.Context, task models.AgentTask, reason string) {
	if err := r.store.TransitionTask(ctx, task.ID, models.TaskFailed, reason); err != nil {
		xlog.Error("Failing task failed", "task", task.ID, "error", err)
	}
	xlog.Warn("Task failed", "task", task.ID, "user", task.UserID, "reason", reason)
}

func title(text string) string {
	const max = 64
	for i := range text {
		if i >= max {
			return text[:i]
		}
	}
	return text
}
