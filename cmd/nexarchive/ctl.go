package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/constants"
	"github.com/aatumaykin/nexarchive/internal/ipc"
	"github.com/aatumaykin/nexarchive/internal/messages"
)

var ctlJSON bool

// ctlCmd groups the commands that talk to a running daemon
var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Control the running archive daemon",
	Long: `Send control requests to a running "nexarchive serve" over its unix socket.

Pacing settings can be passed as key=value pairs, using the names of the
[archive] config section, e.g.:

  nexarchive ctl start 123456 min_delay_ms=5000 max_batch_size=20`,
}

var ctlStartCmd = &cobra.Command{
	Use:   "start <chat_id> [key=value...]",
	Short: "Start archiving a chat",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := chatRequest(constants.CommandStart, args)
		if err != nil {
			return err
		}
		return runControl(cmd, req)
	},
}

var ctlQueueCmd = &cobra.Command{
	Use:   "queue <chat_id> [key=value...]",
	Short: "Queue a chat to archive after the current one",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := chatRequest(constants.CommandQueue, args)
		if err != nil {
			return err
		}
		return runControl(cmd, req)
	},
}

var ctlSetConfigCmd = &cobra.Command{
	Use:   "set-config key=value...",
	Short: "Change the scheduler config",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := parseConfigPatch(args)
		if err != nil {
			return err
		}
		return runControl(cmd, ipc.Request{Type: constants.CommandSetConfig, Config: patch})
	},
}

// simpleCommand builds a subcommand that takes no arguments.
func simpleCommand(use, short, reqType string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runControl(cmd, ipc.Request{Type: reqType})
		},
	}
}

func init() {
	ctlCmd.PersistentFlags().BoolVar(&ctlJSON, "json", false, "Print the raw JSON response")

	ctlCmd.AddCommand(ctlStartCmd)
	ctlCmd.AddCommand(ctlQueueCmd)
	ctlCmd.AddCommand(ctlSetConfigCmd)
	ctlCmd.AddCommand(simpleCommand("pause", "Pause the current job", constants.CommandPause))
	ctlCmd.AddCommand(simpleCommand("resume", "Resume a paused job", constants.CommandResume))
	ctlCmd.AddCommand(simpleCommand("cancel", "Cancel the current job", constants.CommandCancel))
	ctlCmd.AddCommand(simpleCommand("clear-queue", "Drop every queued chat", constants.CommandClearQueue))
	ctlCmd.AddCommand(simpleCommand("queue-list", "List queued chats", constants.CommandQueueList))
	ctlCmd.AddCommand(simpleCommand("get-config", "Show the scheduler config", constants.CommandGetConfig))
}

func runControl(cmd *cobra.Command, req ipc.Request) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return sendControl(cmd.Context(), cmd.OutOrStdout(), cfg.SocketPath(), req, ctlJSON)
}

// sendControl sends req and prints the response. A rejected request is
// returned as an error so the exit code is non-zero.
func sendControl(ctx context.Context, out io.Writer, socketPath string, req ipc.Request, raw bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := ipc.Send(ctx, socketPath, req)
	if err != nil {
		if errors.Is(err, ipc.ErrNotRunning) {
			fmt.Fprintf(out, constants.MsgDaemonNotRunning, socketPath)
		}
		return err
	}

	if raw {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	} else {
		printResponse(out, req.Type, resp)
	}

	if !resp.Success {
		if resp.ErrorKind != "" {
			return errors.Newf("%s (%s)", resp.Error, resp.ErrorKind)
		}
		return errors.New(resp.Error)
	}
	return nil
}

func printResponse(out io.Writer, reqType string, resp *ipc.Response) {
	if !resp.Success {
		fmt.Fprint(out, messages.FormatRequestError(reqType, resp.Error, resp.ErrorKind))
		return
	}
	if resp.Message != "" {
		fmt.Fprintf(out, constants.MsgRequestSucceeded, resp.Message)
	}
	if resp.Status != nil {
		fmt.Fprint(out, messages.FormatStatus(*resp.Status))
	}
	if reqType == constants.CommandQueueList {
		fmt.Fprint(out, messages.FormatQueue(resp.Queue))
	}
	if resp.Config != nil {
		printConfigView(out, "Scheduler config", *resp.Config)
	}
	if resp.JobConfig != nil {
		printConfigView(out, "Current job config", *resp.JobConfig)
	}
}

func printConfigView(out io.Writer, title string, v archive.ConfigView) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(out, "⚙️  %s:\n%s\n", title, data)
}

func chatRequest(reqType string, args []string) (ipc.Request, error) {
	chatID, err := parseChatID(args[0])
	if err != nil {
		return ipc.Request{}, err
	}
	req := ipc.Request{Type: reqType, ChatID: chatID}
	if len(args) > 1 {
		patch, err := parseConfigPatch(args[1:])
		if err != nil {
			return ipc.Request{}, err
		}
		req.Config = patch
	}
	return req, nil
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Newf(constants.MsgInvalidChatID, s)
	}
	return id, nil
}

// stringKeys are the config keys whose values are never numbers or booleans.
var stringKeys = map[string]bool{"export_format": true, "export_path": true}

// parseConfigPatch turns key=value pairs into a patch. Values are decoded as
// JSON scalars so the same validation applies as for socket requests.
func parseConfigPatch(pairs []string) (*archive.ConfigPatch, error) {
	obj := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Newf(constants.MsgConfigKeyExpected, pair)
		}
		obj[key] = scalar(key, strings.TrimSpace(value))
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()

	var patch archive.ConfigPatch
	if err := dec.Decode(&patch); err != nil {
		if field, found := strings.CutPrefix(err.Error(), "json: unknown field "); found {
			return nil, errors.Newf(constants.MsgUnknownConfigKey, strings.Trim(field, `"`))
		}
		return nil, errors.Wrap(err, "invalid config value")
	}
	return &patch, nil
}

func scalar(key, value string) any {
	if stringKeys[key] {
		return value
	}
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	return value
}
