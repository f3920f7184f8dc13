package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/aatumaykin/nexarchive/internal/logger"
)

// Handler serves control requests on a unix socket.
type Handler struct {
	logger *logger.Logger
	ctrl   Controller

	mu     sync.Mutex
	socket net.Listener
	path   string
	wg     sync.WaitGroup
}

// NewHandler creates a handler executing requests against ctrl.
func NewHandler(ctrl Controller, l *logger.Logger) *Handler {
	if l == nil {
		l = logger.Nop()
	}
	return &Handler{logger: l.Component("ipc"), ctrl: ctrl}
}

// Start listens on socketPath.
func (h *Handler) Start(ctx context.Context, socketPath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.socket != nil {
		return errors.New("IPC server already started")
	}

	// remove a stale socket
	if _, err := os.Stat(socketPath); err == nil {
		os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return errors.Wrap(err, "failed to listen on socket")
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		listener.Close()
		return errors.Wrap(err, "failed to restrict socket permissions")
	}

	h.socket = listener
	h.path = socketPath

	h.wg.Add(1)
	go h.acceptConnections(ctx, listener)

	h.logger.Info("IPC server started", logger.Field{Key: "socket", Value: socketPath})
	return nil
}

// acceptConnections accepts until the listener is closed.
func (h *Handler) acceptConnections(ctx context.Context, ln net.Listener) {
	defer h.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			h.logger.Error("failed to accept connection", err)
			continue
		}

		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection serves one request.
func (h *Handler) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		h.respond(conn, Response{Error: fmt.Sprintf("failed to decode request: %v", err)})
		return
	}

	resp := Execute(ctx, h.ctrl, req)
	fields := []logger.Field{
		{Key: "type", Value: req.Type},
		{Key: "success", Value: resp.Success},
	}
	if req.ChatID != 0 {
		fields = append(fields, logger.Field{Key: "chat_id", Value: req.ChatID})
	}
	if resp.Success {
		h.logger.Info("control request", fields...)
	} else {
		h.logger.Warn("control request rejected", append(fields, logger.Field{Key: "error", Value: resp.Error})...)
	}
	h.respond(conn, resp)
}

func (h *Handler) respond(conn net.Conn, resp Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		h.logger.Error("failed to send response", err)
	}
}

// Stop closes the listener and waits for open connections.
func (h *Handler) Stop() error {
	h.mu.Lock()
	ln := h.socket
	h.socket = nil
	h.mu.Unlock()

	if ln == nil {
		return nil
	}
	if err := ln.Close(); err != nil {
		return errors.Wrap(err, "failed to close socket")
	}
	h.wg.Wait()
	h.logger.Info("IPC server stopped")
	return nil
}
