package ipc

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNotRunning is returned when no daemon listens on the socket.
var ErrNotRunning = errors.New("nexarchive daemon is not running")

// DefaultTimeout bounds one request/response round trip.
const DefaultTimeout = 10 * time.Second

// Send delivers req to the daemon and returns its response.
func Send(ctx context.Context, socketPath string, req Request) (*Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "connect to %s", socketPath), ErrNotRunning)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, errors.Wrap(err, "send request")
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	return &resp, nil
}
