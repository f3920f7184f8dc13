// Package mcpserver exposes the archive control surface as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/constants"
	"github.com/aatumaykin/nexarchive/internal/ipc"
	"github.com/aatumaykin/nexarchive/internal/logger"
	"github.com/aatumaykin/nexarchive/internal/sink"
	"github.com/aatumaykin/nexarchive/internal/version"
)

// Stats lists the chats stored in the archive.
type Stats interface {
	Chats(ctx context.Context) ([]sink.ChatSummary, error)
}

// Server wraps the scheduler and exposes it via Model Context Protocol
type Server struct {
	ctrl   ipc.Controller
	stats  Stats
	logger *logger.Logger
	server *server.MCPServer
	tools  map[string]server.ToolHandlerFunc
}

// New creates the MCP server. stats may be nil.
func New(ctrl ipc.Controller, stats Stats, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		ctrl:   ctrl,
		stats:  stats,
		logger: log.Component("mcp"),
		server: server.NewMCPServer(
			"nexarchive",
			version.Version,
			server.WithToolCapabilities(true),
		),
		tools: make(map[string]server.ToolHandlerFunc),
	}
	s.registerTools()
	return s
}

// ServeStdio serves JSON-RPC on stdin/stdout until stdin closes.
func (s *Server) ServeStdio() error {
	s.logger.Info("MCP server listening on stdio")
	return server.ServeStdio(s.server)
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer {
	return s.server
}

func (s *Server) add(tool mcp.Tool, h server.ToolHandlerFunc) {
	s.server.AddTool(tool, h)
	s.tools[tool.Name] = h
}

var configOptions = []mcp.ToolOption{
	mcp.WithNumber("min_delay_ms", mcp.Description("Minimum delay between batches in milliseconds (>= 1000)")),
	mcp.WithNumber("max_delay_ms", mcp.Description("Maximum delay between batches in milliseconds")),
	mcp.WithNumber("min_batch_size", mcp.Description("Minimum messages per batch")),
	mcp.WithNumber("max_batch_size", mcp.Description("Maximum messages per batch (<= 1000)")),
	mcp.WithString("export_format", mcp.Description("Export format on completion"), mcp.Enum("html", "markdown", "both")),
	mcp.WithString("export_path", mcp.Description("Export path; defaults to the workspace exports directory")),
	mcp.WithBoolean("respect_active_hours", mcp.Description("Only archive within active hours")),
}

var setConfigOptions = append([]mcp.ToolOption{
	mcp.WithNumber("burst_pause_ms", mcp.Description("Pause after a burst of batches in milliseconds")),
	mcp.WithNumber("batches_before_burst_pause", mcp.Description("Batches between burst pauses (0 disables)")),
	mcp.WithNumber("long_pause_ms", mcp.Description("Long pause in milliseconds")),
	mcp.WithNumber("batches_before_long_pause", mcp.Description("Batches between long pauses (0 disables)")),
	mcp.WithBoolean("randomize_order", mcp.Description("Shuffle messages inside a batch")),
	mcp.WithBoolean("simulate_reading", mcp.Description("Sleep between messages as if reading")),
	mcp.WithNumber("active_hour_start", mcp.Description("First active hour (0-23)")),
	mcp.WithNumber("active_hour_end", mcp.Description("End of the active window (0-23, exclusive)")),
	mcp.WithNumber("max_messages_per_hour", mcp.Description("Hourly message cap")),
	mcp.WithNumber("max_messages_per_day", mcp.Description("Daily message cap")),
	mcp.WithBoolean("stop_on_rate_limit", mcp.Description("Pause instead of waiting out a rate limit")),
	mcp.WithNumber("max_retries", mcp.Description("Consecutive batch failures before the job fails")),
	mcp.WithBoolean("auto_export_on_complete", mcp.Description("Export the chat when the job completes")),
}, configOptions...)

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.add(mcp.NewTool("start_gradual_export", append([]mcp.ToolOption{
		mcp.WithDescription("Start gradually archiving a chat with human-like pacing"),
		mcp.WithNumber("chat_id", mcp.Required(), mcp.Description("Chat to archive")),
	}, configOptions...)...), s.handleStart)

	s.add(mcp.NewTool("get_gradual_export_status",
		mcp.WithDescription("Get progress and state of the current archive job"),
	), s.simple(constants.CommandStatus))

	s.add(mcp.NewTool("pause_gradual_export",
		mcp.WithDescription("Pause the running archive job"),
	), s.simple(constants.CommandPause))

	s.add(mcp.NewTool("resume_gradual_export",
		mcp.WithDescription("Resume a paused archive job"),
	), s.simple(constants.CommandResume))

	s.add(mcp.NewTool("cancel_gradual_export",
		mcp.WithDescription("Cancel the archive job; already archived messages are kept"),
	), s.simple(constants.CommandCancel))

	s.add(mcp.NewTool("get_gradual_export_config",
		mcp.WithDescription("Get the default archive config and the config of the active job"),
	), s.simple(constants.CommandGetConfig))

	s.add(mcp.NewTool("set_gradual_export_config", append([]mcp.ToolOption{
		mcp.WithDescription("Update the default archive config; only given fields change. The active job keeps its own config"),
	}, setConfigOptions...)...), s.handleSetConfig)

	s.add(mcp.NewTool("queue_gradual_export",
		mcp.WithDescription("Queue a chat to be archived after the current job"),
		mcp.WithNumber("chat_id", mcp.Required(), mcp.Description("Chat to queue")),
	), s.handleQueue)

	s.add(mcp.NewTool("get_gradual_export_queue",
		mcp.WithDescription("List queued chats"),
	), s.simple(constants.CommandQueueList))

	s.add(mcp.NewTool("clear_gradual_export_queue",
		mcp.WithDescription("Remove every queued chat"),
	), s.simple(constants.CommandClearQueue))

	if s.stats != nil {
		s.add(mcp.NewTool("get_archive_stats",
			mcp.WithDescription("List archived chats with message counts"),
		), s.handleStats)
	}
}

func (s *Server) simple(command string) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.execute(ctx, ipc.Request{Type: command})
	}
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chatID, err := chatIDArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	patch, err := patchArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.execute(ctx, ipc.Request{Type: constants.CommandStart, ChatID: chatID, Config: patch})
}

func (s *Server) handleQueue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chatID, err := chatIDArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.execute(ctx, ipc.Request{Type: constants.CommandQueue, ChatID: chatID})
}

func (s *Server) handleSetConfig(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patch, err := patchArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.execute(ctx, ipc.Request{Type: constants.CommandSetConfig, Config: patch})
}

func (s *Server) handleStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chats, err := s.stats.Chats(ctx)
	if err != nil {
		s.logger.Error("failed to read archive stats", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read archive stats: %v", err)), nil
	}
	total := 0
	for _, c := range chats {
		total += c.MessageCount
	}
	return jsonResult(map[string]any{
		"success":        true,
		"chats":          chats,
		"total_messages": total,
	})
}

func (s *Server) execute(ctx context.Context, req ipc.Request) (*mcp.CallToolResult, error) {
	resp := ipc.Execute(ctx, s.ctrl, req)
	s.logger.Debug("tool call",
		logger.Field{Key: "type", Value: req.Type},
		logger.Field{Key: "success", Value: resp.Success})

	res, err := jsonResult(resp)
	if err != nil {
		return nil, err
	}
	res.IsError = !resp.Success
	return res, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode tool result")
	}
	return mcp.NewToolResultText(string(data)), nil
}

// chatIDArg accepts chat_id as a JSON number or a decimal string.
func chatIDArg(request mcp.CallToolRequest) (int64, error) {
	raw, ok := request.GetArguments()["chat_id"]
	if !ok {
		return 0, errors.New("required argument \"chat_id\" not found")
	}
	switch v := raw.(type) {
	case float64:
		if v != float64(int64(v)) || v == 0 {
			return 0, errors.New("chat_id must be a non-zero integer")
		}
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id == 0 {
			return 0, errors.New("chat_id must be a non-zero integer")
		}
		return id, nil
	default:
		return 0, errors.New("chat_id must be a number")
	}
}

// patchArgs collects the config fields present in the arguments.
func patchArgs(request mcp.CallToolRequest) (*archive.ConfigPatch, error) {
	args := request.GetArguments()
	p := &archive.ConfigPatch{}

	int64s := map[string]**int64{
		"min_delay_ms":   &p.MinDelayMs,
		"max_delay_ms":   &p.MaxDelayMs,
		"burst_pause_ms": &p.BurstPauseMs,
		"long_pause_ms":  &p.LongPauseMs,
	}
	for name, dst := range int64s {
		if v, ok := args[name]; ok {
			n, err := intArg(name, v)
			if err != nil {
				return nil, err
			}
			n64 := int64(n)
			*dst = &n64
		}
	}

	ints := map[string]**int{
		"batches_before_burst_pause": &p.BatchesBeforeBurstPause,
		"batches_before_long_pause":  &p.BatchesBeforeLongPause,
		"min_batch_size":             &p.MinBatchSize,
		"max_batch_size":             &p.MaxBatchSize,
		"active_hour_start":          &p.ActiveHourStart,
		"active_hour_end":            &p.ActiveHourEnd,
		"max_messages_per_hour":      &p.MaxMessagesPerHour,
		"max_messages_per_day":       &p.MaxMessagesPerDay,
		"max_retries":                &p.MaxRetries,
	}
	for name, dst := range ints {
		if v, ok := args[name]; ok {
			n, err := intArg(name, v)
			if err != nil {
				return nil, err
			}
			*dst = &n
		}
	}

	bools := map[string]**bool{
		"randomize_order":         &p.RandomizeOrder,
		"simulate_reading":        &p.SimulateReading,
		"respect_active_hours":    &p.RespectActiveHours,
		"stop_on_rate_limit":      &p.StopOnRateLimit,
		"auto_export_on_complete": &p.AutoExportOnComplete,
	}
	for name, dst := range bools {
		if v, ok := args[name]; ok {
			b, ok := v.(bool)
			if !ok {
				return nil, errors.Newf("%s must be a boolean", name)
			}
			*dst = &b
		}
	}

	strs := map[string]**string{
		"export_format": &p.ExportFormat,
		"export_path":   &p.ExportPath,
	}
	for name, dst := range strs {
		if v, ok := args[name]; ok {
			str, ok := v.(string)
			if !ok {
				return nil, errors.Newf("%s must be a string", name)
			}
			*dst = &str
		}
	}

	if p.IsEmpty() {
		return nil, nil
	}
	return p, nil
}

func intArg(name string, v any) (int, error) {
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) {
		return 0, errors.Newf("%s must be an integer", name)
	}
	return int(f), nil
}
