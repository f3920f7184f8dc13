package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/constants"
	"github.com/aatumaykin/nexarchive/internal/ipc"
	"github.com/aatumaykin/nexarchive/internal/messages"
	"github.com/aatumaykin/nexarchive/internal/state"
)

var statusJSON bool

// statusCmd shows the archive job. Without a running daemon the persisted
// state file is read instead.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the archive job status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return showStatus(cmd.Context(), cmd.OutOrStdout(), cfg.SocketPath(), state.NewFileStoreAt(cfg.StatePath(), nil), statusJSON)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the status as JSON")
}

func showStatus(ctx context.Context, out io.Writer, socketPath string, store archive.StateStore, raw bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Type: constants.CommandStatus})
	switch {
	case err == nil:
		if !resp.Success || resp.Status == nil {
			return errors.Newf("status request failed: %s", resp.Error)
		}
		return printStatus(out, *resp.Status, nil, raw)
	case !errors.Is(err, ipc.ErrNotRunning):
		return err
	}

	if store == nil {
		fmt.Fprintf(out, constants.MsgDaemonNotRunning, socketPath)
		return nil
	}
	rec, err := store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "read saved state")
	}
	if !raw {
		fmt.Fprint(out, constants.MsgDaemonOffline)
	}
	if rec == nil {
		if !raw {
			fmt.Fprintln(out, constants.MsgDaemonNoState)
		}
		return nil
	}
	return printStatus(out, rec.Status, rec.Queue, raw)
}

func printStatus(out io.Writer, v archive.StatusView, queue []archive.QueueEntry, raw bool) error {
	if raw {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	fmt.Fprint(out, messages.FormatStatus(v))
	if len(queue) > 0 {
		fmt.Fprint(out, messages.FormatQueue(queue))
	}
	return nil
}
