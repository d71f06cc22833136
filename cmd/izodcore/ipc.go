package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// External clients drive the core over a Unix domain socket. This enables:
//   - Remote control via command-line tools
//   - UI processes that don't want a WebSocket
//   - Scripting and automation
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "command_name", "data": {...}}
//   - Server responds: {"status": "ok", "data": {...}?}
//     or {"status": "error", "error": "msg"}
// ============================================================================

// IPCRequest is one client command.
type IPCRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse is the reply sent back to IPC clients.
type IPCResponse struct {
	Status string          `json:"status"`          // "ok" or "error"
	Error  string          `json:"error,omitempty"` // set when status == "error"
	Data   json.RawMessage `json:"data,omitempty"`  // command-specific payload
}

type ipcSeekData struct {
	PositionS float64 `json:"position_s"`
}

type ipcVolumeData struct {
	Volume int `json:"volume"`
}

type ipcSensitivityData struct {
	Level string `json:"level"`
}

type ipcThresholdData struct {
	Electrode int `json:"electrode"`
	Touch     int `json:"touch"`
	Release   int `json:"release"`
}

type ipcCalibrateResult struct {
	Deferred bool `json:"deferred"`
}

// ipcServer dispatches socket commands onto the pipeline and sampling loop.
type ipcServer struct {
	logger   *slog.Logger
	audio    *AudioPipeline
	sampling *samplingLoop
	daemon   *daemon
	path     string
}

func newIPCServer(path string, audio *AudioPipeline, sampling *samplingLoop, dm *daemon, logger *slog.Logger) *ipcServer {
	return &ipcServer{
		logger:   logger,
		audio:    audio,
		sampling: sampling,
		daemon:   dm,
		path:     ExpandPath(path),
	}
}

// Run listens on the socket until ctx is canceled.
func (s *ipcServer) Run(ctx context.Context) error {
	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.path, err)
	}
	defer listener.Close()
	defer os.Remove(s.path)

	// Make the socket accessible to local UI processes.
	if err := os.Chmod(s.path, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.logger.Info("ipc listening", "path", s.path)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || strings.Contains(err.Error(), "use of closed network connection") {
				s.logger.Info("ipc listener closed")
				return ctx.Err()
			}
			s.logger.Error("ipc accept error", "error", err)
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *ipcServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	s.logger.Debug("ipc connection opened")

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req IPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.respondErr(encoder, fmt.Errorf("parse request: %w", err))
			continue
		}

		resp := s.dispatch(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("ipc response write failed", "error", err)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.logger.Debug("ipc scanner error", "error", err)
	}
	s.logger.Debug("ipc connection closed")
}

func (s *ipcServer) respondErr(enc *json.Encoder, err error) {
	if encErr := enc.Encode(IPCResponse{Status: "error", Error: err.Error()}); encErr != nil {
		s.logger.Error("ipc error response write failed", "error", encErr)
	}
}

func (s *ipcServer) dispatch(ctx context.Context, req IPCRequest) IPCResponse {
	cctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	fail := func(err error) IPCResponse {
		return IPCResponse{Status: "error", Error: err.Error()}
	}
	ok := IPCResponse{Status: "ok"}

	switch req.Type {
	case "play":
		if err := s.audio.Play(cctx); err != nil {
			return fail(err)
		}
		return ok

	case "pause":
		if err := s.audio.Pause(cctx); err != nil {
			return fail(err)
		}
		return ok

	case "toggle_play":
		if err := s.audio.TogglePlay(cctx); err != nil {
			return fail(err)
		}
		return ok

	case "stop":
		if err := s.audio.Stop(cctx); err != nil {
			return fail(err)
		}
		return ok

	case "next":
		if err := s.audio.Next(cctx); err != nil {
			return fail(err)
		}
		return ok

	case "prev":
		if err := s.audio.Prev(cctx); err != nil {
			return fail(err)
		}
		return ok

	case "seek":
		var d ipcSeekData
		if err := json.Unmarshal(req.Data, &d); err != nil {
			return fail(fmt.Errorf("seek data: %w", err))
		}
		pos := time.Duration(d.PositionS * float64(time.Second))
		if err := s.audio.Seek(cctx, pos); err != nil {
			return fail(err)
		}
		return ok

	case "set_volume":
		var d ipcVolumeData
		if err := json.Unmarshal(req.Data, &d); err != nil {
			return fail(fmt.Errorf("set_volume data: %w", err))
		}
		if err := s.audio.SetVolume(cctx, d.Volume); err != nil {
			return fail(err)
		}
		return ok

	case "set_sensitivity":
		var d ipcSensitivityData
		if err := json.Unmarshal(req.Data, &d); err != nil {
			return fail(fmt.Errorf("set_sensitivity data: %w", err))
		}
		level, err := ParseSensitivityLevel(d.Level)
		if err != nil {
			return fail(err)
		}
		if err := s.sampling.SetLevel(cctx, level); err != nil {
			return fail(err)
		}
		return ok

	case "set_threshold":
		var d ipcThresholdData
		if err := json.Unmarshal(req.Data, &d); err != nil {
			return fail(fmt.Errorf("set_threshold data: %w", err))
		}
		if err := s.sampling.SetThreshold(cctx, d.Electrode, d.Touch, d.Release); err != nil {
			return fail(err)
		}
		return ok

	case "calibrate":
		deferred, err := s.sampling.Calibrate(cctx)
		if err != nil {
			return fail(err)
		}
		data, err := json.Marshal(ipcCalibrateResult{Deferred: deferred})
		if err != nil {
			return fail(err)
		}
		return IPCResponse{Status: "ok", Data: data}

	case "status":
		snap, err := s.daemon.Snapshot(cctx)
		if err != nil {
			return fail(err)
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return fail(err)
		}
		return IPCResponse{Status: "ok", Data: data}

	default:
		return fail(fmt.Errorf("unknown command: %q", req.Type))
	}
}

// ============================================================================
// IPC Client Utility
// ============================================================================

// SendIPCCommand sends one command to a running core and returns the
// response payload. Used by command-line tools and tests.
func SendIPCCommand(socketPath, cmdType string, data any) (json.RawMessage, error) {
	conn, err := net.Dial("unix", ExpandPath(socketPath))
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	req := IPCRequest{Type: cmdType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal command data: %w", err)
		}
		req.Data = raw
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", payload); err != nil {
		return nil, fmt.Errorf("send command: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status == "error" {
		return nil, fmt.Errorf("core error: %s", resp.Error)
	}
	return resp.Data, nil
}
