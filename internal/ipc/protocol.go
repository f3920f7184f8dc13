package ipc

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/constants"
)

// Controller is the control surface of the archive scheduler.
type Controller interface {
	Start(ctx context.Context, chatID int64, cfg *archive.JobConfig) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Cancel(ctx context.Context) error
	Queue(ctx context.Context, chatID int64, cfg *archive.JobConfig) error
	ClearQueue(ctx context.Context) int
	SetConfig(ctx context.Context, patch archive.ConfigPatch) (archive.ConfigView, error)
	Status() archive.StatusView
	Config() archive.ConfigView
	JobConfig() (archive.ConfigView, bool)
	Pending() []archive.QueueEntry
}

var _ Controller = (*archive.Scheduler)(nil)

// Request is a control request sent by the CLI.
type Request struct {
	Type   string               `json:"type"`
	ChatID int64                `json:"chat_id,omitempty"`
	Config *archive.ConfigPatch `json:"config,omitempty"`
}

// Response is the daemon's answer to a Request.
type Response struct {
	Success   bool                 `json:"success"`
	Message   string               `json:"message,omitempty"`
	Status    *archive.StatusView  `json:"status,omitempty"`
	Config    *archive.ConfigView  `json:"config,omitempty"`
	JobConfig *archive.ConfigView  `json:"job_config,omitempty"`
	Queue     []archive.QueueEntry `json:"queue,omitempty"`
	Error     string               `json:"error,omitempty"`
	ErrorKind string               `json:"error_kind,omitempty"`
}

// Execute runs one control request against ctrl. Rejected commands come back
// as an unsuccessful response, never as a Go error.
func Execute(ctx context.Context, ctrl Controller, req Request) Response {
	switch req.Type {
	case constants.CommandStart:
		if req.ChatID == 0 {
			return failure(errors.New("chat_id is required"))
		}
		if err := ctrl.Start(ctx, req.ChatID, jobConfig(ctrl, req.Config)); err != nil {
			return failure(err)
		}
		return withStatus(ctrl, fmt.Sprintf("archiving of chat %d started", req.ChatID))

	case constants.CommandPause:
		if err := ctrl.Pause(ctx); err != nil {
			return failure(err)
		}
		return withStatus(ctrl, "paused")

	case constants.CommandResume:
		if err := ctrl.Resume(ctx); err != nil {
			return failure(err)
		}
		return withStatus(ctrl, "resumed")

	case constants.CommandCancel:
		if err := ctrl.Cancel(ctx); err != nil {
			return failure(err)
		}
		return withStatus(ctrl, "cancelled")

	case constants.CommandStatus:
		return withStatus(ctrl, "")

	case constants.CommandQueue:
		if req.ChatID == 0 {
			return failure(errors.New("chat_id is required"))
		}
		if err := ctrl.Queue(ctx, req.ChatID, jobConfig(ctrl, req.Config)); err != nil {
			return failure(err)
		}
		resp := withStatus(ctrl, fmt.Sprintf("chat %d queued", req.ChatID))
		resp.Queue = ctrl.Pending()
		return resp

	case constants.CommandClearQueue:
		n := ctrl.ClearQueue(ctx)
		return Response{Success: true, Message: fmt.Sprintf("%d queued chats removed", n), Queue: []archive.QueueEntry{}}

	case constants.CommandQueueList:
		return Response{Success: true, Queue: ctrl.Pending()}

	case constants.CommandGetConfig:
		cfg := ctrl.Config()
		resp := Response{Success: true, Config: &cfg}
		if job, ok := ctrl.JobConfig(); ok {
			resp.JobConfig = &job
		}
		return resp

	case constants.CommandSetConfig:
		if req.Config == nil || req.Config.IsEmpty() {
			return failure(errors.New("config patch is empty"))
		}
		cfg, err := ctrl.SetConfig(ctx, *req.Config)
		if err != nil {
			resp := failure(err)
			resp.Config = &cfg
			return resp
		}
		return Response{Success: true, Message: "config updated", Config: &cfg}

	default:
		return failure(errors.Newf("unknown request type: %s", req.Type))
	}
}

// jobConfig applies an optional patch on top of the scheduler config.
func jobConfig(ctrl Controller, patch *archive.ConfigPatch) *archive.JobConfig {
	if patch == nil || patch.IsEmpty() {
		return nil
	}
	cfg := patch.Apply(ctrl.Config().Config())
	return &cfg
}

func withStatus(ctrl Controller, msg string) Response {
	st := ctrl.Status()
	return Response{Success: true, Message: msg, Status: &st}
}

func failure(err error) Response {
	return Response{Success: false, Error: err.Error(), ErrorKind: archive.Kind(err)}
}
