package engine

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/andresmejia3/facemood/internal/types"
	"github.com/andresmejia3/facemood/internal/utils" // Using the SafeCommand wrapper
)

// ErrWorkerExited is returned by Ready once the Python process is gone.
var ErrWorkerExited = errors.New("python worker is not running")

const (
	statusOK    byte = 0
	statusError byte = 1

	// maxReplySize guards against a corrupted length header.
	maxReplySize = 16 * 1024 * 1024
)

// PythonConfig describes how to launch the recognition worker.
type PythonConfig struct {
	Python      string
	Script      string
	ReadTimeout time.Duration
	// Env is appended to the parent's environment.
	Env []string
}

// PythonEngine keeps a Python worker process alive and talks to it over pipes.
type PythonEngine struct {
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration

	mu     sync.Mutex
	exited chan struct{}

	// broken is set once a request fails mid-exchange. The pipes may then hold
	// part of a reply, so the worker is never spoken to again.
	brokenMu sync.Mutex
	broken   error
}

// NewPythonEngine starts the worker script. Model loading happens inside the
// child, so the first Recognize call can be slow.
func NewPythonEngine(cfg PythonConfig) (*PythonEngine, error) {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}

	py := utils.NewSafeCommand(cfg.Python, "-u", cfg.Script)
	if len(cfg.Env) > 0 {
		py.Cmd.Env = append(os.Environ(), cfg.Env...)
	}

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close() // Close write end if start fails
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("python worker failed to start: %w", err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	e := &PythonEngine{
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
		exited:      make(chan struct{}),
	}
	go func() {
		py.Wait()
		close(e.exited)
	}()
	return e, nil
}

// Ready fails once the worker has exited or if it was never started.
func (e *PythonEngine) Ready() error {
	if e == nil || e.Stdin == nil || e.DataPipe == nil {
		return ErrWorkerExited
	}
	if err := e.brokenErr(); err != nil {
		return err
	}
	select {
	case <-e.exited:
		return fmt.Errorf("%w: %s", ErrWorkerExited, lastLine(e.Cmd.Logs()))
	default:
		return nil
	}
}

// Recognize sends one request and blocks until the worker replies.
// Requests are serialized; the worker handles one image at a time.
func (e *PythonEngine) Recognize(ctx context.Context, imagePath, assetPath string) (string, error) {
	req, err := json.Marshal(types.EngineRequest{ImagePath: imagePath, AssetPath: assetPath})
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.brokenErr(); err != nil {
		return "", err
	}

	e.setDeadline(ctx)
	resp, err := e.Communicate(req)
	if err != nil {
		// A late or partial reply would be read as the answer to the next request.
		e.abandon(err)
		return "", err
	}
	return parseReply(resp)
}

// abandon kills the worker and closes both pipes after a failed exchange.
func (e *PythonEngine) abandon(cause error) {
	e.brokenMu.Lock()
	if e.broken == nil {
		e.broken = fmt.Errorf("%w: abandoned after failed request: %v", ErrWorkerExited, cause)
	}
	e.brokenMu.Unlock()

	if e.Cmd != nil && e.Cmd.Process != nil {
		e.Cmd.Process.Kill()
	}
	e.Stdin.Close()
	e.DataPipe.Close()
}

func (e *PythonEngine) brokenErr() error {
	e.brokenMu.Lock()
	defer e.brokenMu.Unlock()
	return e.broken
}

// Communicate writes one framed request and reads one framed reply.
func (e *PythonEngine) Communicate(data []byte) ([]byte, error) {
	// Request: [Length][JSON]
	if err := binary.Write(e.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := e.Stdin.Write(data); err != nil {
		return nil, err
	}

	// Reply: [Length][Status][Body] on FD 3. EOF here means the worker died.
	header := make([]byte, 4)
	if _, err := io.ReadFull(e.DataPipe, header); err != nil {
		return nil, err
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxReplySize {
		return nil, fmt.Errorf("python worker reply too large: %d bytes", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(e.DataPipe, respBody)
	return respBody, err
}

// setDeadline bounds the reply read when the pipe supports deadlines (os.Pipe does).
func (e *PythonEngine) setDeadline(ctx context.Context) {
	d, ok := e.DataPipe.(interface{ SetReadDeadline(time.Time) error })
	if !ok {
		return
	}
	var deadline time.Time
	if e.ReadTimeout > 0 {
		deadline = time.Now().Add(e.ReadTimeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	d.SetReadDeadline(deadline)
}

// parseReply decodes [Status][Body]. Status 0 carries the JSON result,
// status 1 an error message raised inside Python.
func parseReply(resp []byte) (string, error) {
	if len(resp) == 0 {
		return "", errors.New("python worker sent an empty reply")
	}
	switch resp[0] {
	case statusOK:
		return string(resp[1:]), nil
	case statusError:
		return "", fmt.Errorf("python worker error: %s", resp[1:])
	default:
		return "", fmt.Errorf("python worker sent unknown status %d", resp[0])
	}
}

// Close shuts the worker down by closing its stdin and waits for it to exit.
// Closing pipes a failed request already closed is harmless.
func (e *PythonEngine) Close() {
	e.Stdin.Close()
	e.DataPipe.Close()
	if e.exited != nil {
		<-e.exited
	}
}

func lastLine(s string) string {
	end := len(s)
	for end > 0 && (s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	start := end
	for start > 0 && s[start-1] != '\n' {
		start--
	}
	return s[start:end]
}
