package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresmejia3/facemood/internal/types"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

// frame writes a [Length][Status][Body] reply the way worker.py does.
func frame(status byte, body string) *MockCloser {
	payload := append([]byte{status}, body...)
	m := &MockCloser{Buffer: new(bytes.Buffer)}
	binary.Write(m, binary.BigEndian, uint32(len(payload)))
	m.Write(payload)
	return m
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPythonEngineRecognize(t *testing.T) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	reply := `{"status": "success", "name": "Alice", "emotion": "happy"}`

	e := &PythonEngine{Stdin: stdinMock, DataPipe: frame(statusOK, reply)}

	got, err := e.Recognize(context.Background(), "/cache/temp_image_resized.jpg", "/files/encodings.pkl")
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if got != reply {
		t.Errorf("Recognize() = %q, want %q", got, reply)
	}

	// Verify Go sent the correct data TO Python
	sent := stdinMock.Bytes()
	if len(sent) < 4 {
		t.Fatalf("Expected a length header, got %d bytes", len(sent))
	}
	n := binary.BigEndian.Uint32(sent[:4])
	if int(n) != len(sent)-4 {
		t.Errorf("Header says %d bytes, body has %d", n, len(sent)-4)
	}
	var req types.EngineRequest
	if err := json.Unmarshal(sent[4:], &req); err != nil {
		t.Fatalf("Request is not JSON: %v", err)
	}
	if req.ImagePath != "/cache/temp_image_resized.jpg" || req.AssetPath != "/files/encodings.pkl" {
		t.Errorf("Unexpected request %+v", req)
	}
}

func TestPythonEngineRecognizeError(t *testing.T) {
	errMsg := "Python Exception: Import Error"
	e := &PythonEngine{
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: frame(statusError, errMsg),
	}

	_, err := e.Recognize(context.Background(), "a.jpg", "b.pkl")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != "python worker error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "python worker error: "+errMsg, err)
	}
}

func TestPythonEngineCrash(t *testing.T) {
	// Empty pipe: the worker died before answering.
	e := &PythonEngine{
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: &MockCloser{Buffer: new(bytes.Buffer)},
	}
	if _, err := e.Recognize(context.Background(), "a.jpg", "b.pkl"); err == nil {
		t.Fatal("Expected error from an empty data pipe")
	}
}

// writeFrame writes one [Length][Status][Body] reply to w.
func writeFrame(w io.Writer, status byte, body string) error {
	payload := append([]byte{status}, body...)
	if err := binary.Write(w, binary.BigEndian, uint32(len(payload))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func TestPythonEngineTimeoutAbandonsWorker(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	e := &PythonEngine{
		Stdin:       &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe:    r,
		ReadTimeout: 100 * time.Millisecond,
	}

	// The worker answers the first request late, then answers the second on time.
	go func() {
		time.Sleep(300 * time.Millisecond)
		if writeFrame(w, statusOK, `{"name":"Alice"}`) != nil {
			return
		}
		writeFrame(w, statusOK, `{"name":"Bob"}`)
	}()

	if _, err := e.Recognize(context.Background(), "alice.jpg", "enc.pkl"); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("first call: expected a read timeout, got %v", err)
	}
	if err := e.Ready(); !errors.Is(err, ErrWorkerExited) {
		t.Errorf("Ready after a timeout = %v, want ErrWorkerExited", err)
	}

	time.Sleep(400 * time.Millisecond)
	got, err := e.Recognize(context.Background(), "bob.jpg", "enc.pkl")
	if !errors.Is(err, ErrWorkerExited) {
		t.Fatalf("second call returned %q, %v; want ErrWorkerExited", got, err)
	}
	if got != "" {
		t.Errorf("second call returned a stale reply %q", got)
	}
}

func TestPythonEngineBrokenFrameAbandonsWorker(t *testing.T) {
	// A length header beyond maxReplySize leaves the body unread in the pipe.
	pipe := &MockCloser{Buffer: new(bytes.Buffer)}
	binary.Write(pipe, binary.BigEndian, uint32(maxReplySize+1))
	pipe.WriteString("tail of an oversized reply")
	writeFrame(pipe, statusOK, `{"name":"Bob"}`)

	e := &PythonEngine{Stdin: &MockCloser{Buffer: new(bytes.Buffer)}, DataPipe: pipe}
	if _, err := e.Recognize(context.Background(), "a.jpg", "b.pkl"); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected an oversized reply error, got %v", err)
	}
	if _, err := e.Recognize(context.Background(), "b.jpg", "b.pkl"); !errors.Is(err, ErrWorkerExited) {
		t.Errorf("expected ErrWorkerExited after a broken frame, got %v", err)
	}
}

func TestPythonEngineErrorReplyKeepsWorker(t *testing.T) {
	// A status-1 reply is a complete frame, so the next request is still in step.
	pipe := &MockCloser{Buffer: new(bytes.Buffer)}
	writeFrame(pipe, statusError, "no face found")
	writeFrame(pipe, statusOK, `{"name":"Bob"}`)

	e := &PythonEngine{Stdin: &MockCloser{Buffer: new(bytes.Buffer)}, DataPipe: pipe}
	if _, err := e.Recognize(context.Background(), "a.jpg", "b.pkl"); err == nil {
		t.Fatal("expected the worker's error")
	}
	if err := e.Ready(); err != nil {
		t.Fatalf("Ready after an error reply = %v", err)
	}
	got, err := e.Recognize(context.Background(), "b.jpg", "b.pkl")
	if err != nil || got != `{"name":"Bob"}` {
		t.Errorf("second call = %q, %v", got, err)
	}
}

func TestBridgeThroughAbandonedWorker(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "img.jpg", []byte("jpeg"))
	asset := writeFile(t, dir, "enc.pkl", []byte("enc"))

	e := &PythonEngine{
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: &MockCloser{Buffer: new(bytes.Buffer)},
	}
	b := NewBridge(e, nil)

	// Empty pipe: the exchange fails and the worker is dropped.
	if _, err := b.Invoke(context.Background(), image, asset); !errors.Is(err, types.ErrEngineInvocationFailure) {
		t.Fatalf("first Invoke = %v, want EngineInvocationFailure", err)
	}
	if _, err := b.Invoke(context.Background(), image, asset); !errors.Is(err, types.ErrEngineUnavailable) {
		t.Errorf("second Invoke = %v, want EngineUnavailable", err)
	}
}

func TestBridgeCancelled(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "img.jpg", []byte("jpeg"))
	asset := writeFile(t, dir, "enc.pkl", []byte("enc"))

	release := make(chan struct{})
	defer close(release)
	b := NewBridge(Func(func(ctx context.Context, _, _ string) (string, error) {
		<-release
		return "{}", nil
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Invoke(ctx, image, asset)
	if !errors.Is(err, types.ErrEngineInvocationFailure) {
		t.Errorf("expected EngineInvocationFailure, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected the cancellation to stay visible, got %v", err)
	}
}

func TestParseReply(t *testing.T) {
	if _, err := parseReply(nil); err == nil {
		t.Error("Expected error for empty reply")
	}
	if _, err := parseReply([]byte{7, 'x'}); err == nil || !strings.Contains(err.Error(), "unknown status 7") {
		t.Errorf("Expected unknown status error, got %v", err)
	}
	if got, err := parseReply([]byte{statusOK}); err != nil || got != "" {
		t.Errorf("parseReply(ok, empty) = %q, %v", got, err)
	}
}

func TestPythonEngineReady(t *testing.T) {
	var nilEngine *PythonEngine
	if err := nilEngine.Ready(); !errors.Is(err, ErrWorkerExited) {
		t.Errorf("nil engine: expected ErrWorkerExited, got %v", err)
	}

	e := &PythonEngine{Stdin: &MockCloser{Buffer: new(bytes.Buffer)}, DataPipe: &MockCloser{Buffer: new(bytes.Buffer)}}
	if err := e.Ready(); err != nil {
		t.Errorf("engine with pipes should be ready, got %v", err)
	}

	e.exited = make(chan struct{})
	close(e.exited)
	if err := e.Ready(); !errors.Is(err, ErrWorkerExited) {
		t.Errorf("exited engine: expected ErrWorkerExited, got %v", err)
	}
}

func TestLastLine(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"one", "one"},
		{"Traceback\nImportError: cv2\n", "ImportError: cv2"},
		{"a\nb\r\n\n", "b"},
	}
	for _, tt := range tests {
		if got := lastLine(tt.in); got != tt.want {
			t.Errorf("lastLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBridgeInvoke(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "temp_image_resized.jpg", []byte{0xFF, 0xD8, 0xFF, 0xD9})
	asset := writeFile(t, dir, "encodings.pkl", []byte("encodings"))

	var gotImage, gotAsset string
	b := NewBridge(Func(func(ctx context.Context, imagePath, assetPath string) (string, error) {
		gotImage, gotAsset = imagePath, assetPath
		return `{"status":"success"}`, nil
	}), nil)

	raw, err := b.Invoke(context.Background(), image, asset)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if raw != `{"status":"success"}` {
		t.Errorf("Invoke() = %q", raw)
	}
	if gotImage != image || gotAsset != asset {
		t.Errorf("engine called with (%s, %s)", gotImage, gotAsset)
	}
}

func TestBridgeRunsOffCallerGoroutine(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "img.jpg", []byte("x"))
	asset := writeFile(t, dir, "enc.pkl", []byte("y"))

	// The engine blocks until released; Invoke must wait for it rather than return early.
	release := make(chan struct{})
	entered := make(chan struct{})
	b := NewBridge(Func(func(ctx context.Context, _, _ string) (string, error) {
		close(entered)
		<-release
		return "{}", nil
	}), nil)

	done := make(chan error, 1)
	go func() {
		_, err := b.Invoke(context.Background(), image, asset)
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("engine was never invoked")
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
}

func TestBridgeValidation(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "img.jpg", []byte("jpeg"))
	empty := writeFile(t, dir, "empty.jpg", nil)
	asset := writeFile(t, dir, "enc.pkl", []byte("enc"))
	missing := filepath.Join(dir, "missing.jpg")

	var calls atomic.Int32
	counting := Func(func(ctx context.Context, _, _ string) (string, error) {
		calls.Add(1)
		return "{}", nil
	})

	tests := []struct {
		name   string
		engine Engine
		image  string
		asset  string
		want   error
	}{
		{"Zero-byte image short-circuits", counting, empty, asset, types.ErrEmptyFile},
		{"Zero-byte asset short-circuits", counting, image, empty, types.ErrEmptyFile},
		{"Missing image", counting, missing, asset, types.ErrMissingFile},
		{"Missing asset", counting, image, missing, types.ErrMissingFile},
		{"Directory instead of image", counting, dir, asset, types.ErrMissingFile},
		{"No engine", nil, image, asset, types.ErrEngineUnavailable},
		{"Engine not loaded", &PythonEngine{}, image, asset, types.ErrEngineUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBridge(tt.engine, nil)
			_, err := b.Invoke(context.Background(), tt.image, tt.asset)
			if !errors.Is(err, tt.want) {
				t.Errorf("Invoke() error = %v, want %v", err, tt.want)
			}
		})
	}

	if n := calls.Load(); n != 0 {
		t.Errorf("engine was called %d times, want 0", n)
	}
}

func TestBridgeEngineFailure(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "img.jpg", []byte("jpeg"))
	asset := writeFile(t, dir, "enc.pkl", []byte("enc"))

	var calls atomic.Int32
	b := NewBridge(Func(func(ctx context.Context, _, _ string) (string, error) {
		calls.Add(1)
		return "", errors.New("model load failed")
	}), nil)

	_, err := b.Invoke(context.Background(), image, asset)
	if !errors.Is(err, types.ErrEngineInvocationFailure) {
		t.Fatalf("expected EngineInvocationFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "model load failed") {
		t.Errorf("error should carry the engine's message, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("engine called %d times, want exactly 1 (no retries)", n)
	}
}

// TestPythonEngineProcess drives the real worker.py against a stub recognition module.
func TestPythonEngineProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping process test in short mode")
	}
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available")
	}

	dir := t.TempDir()
	writeFile(t, dir, "stub_engine.py", []byte(`
import json

def process_image(image_path, encoding_file_path):
    if image_path.endswith("boom.jpg"):
        raise RuntimeError("stub exploded")
    return json.dumps({"status": "success", "name": "Stub", "emotion": "neutral", "time": image_path})
`))

	script, err := filepath.Abs(filepath.Join("..", "..", "python", "worker.py"))
	if err != nil {
		t.Fatal(err)
	}

	e, err := NewPythonEngine(PythonConfig{
		Python:      python,
		Script:      script,
		ReadTimeout: 30 * time.Second,
		Env:         []string{"PYTHONPATH=" + dir, "FACEMOOD_ENGINE_MODULE=stub_engine"},
	})
	if err != nil {
		t.Fatalf("NewPythonEngine failed: %v", err)
	}
	defer e.Close()

	if err := e.Ready(); err != nil {
		t.Fatalf("engine not ready: %v", err)
	}

	raw, err := e.Recognize(context.Background(), "/tmp/face.jpg", "/tmp/encodings.pkl")
	if err != nil {
		t.Fatalf("Recognize failed: %v (stderr: %s)", err, e.Cmd.Logs())
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("reply is not JSON: %v", err)
	}
	if got["name"] != "Stub" || got["time"] != "/tmp/face.jpg" {
		t.Errorf("unexpected reply %v", got)
	}

	// Errors raised in Python come back as status 1 and the worker keeps serving.
	if _, err := e.Recognize(context.Background(), "/tmp/boom.jpg", "/tmp/encodings.pkl"); err == nil || !strings.Contains(err.Error(), "stub exploded") {
		t.Errorf("expected python worker error, got %v", err)
	}
	if _, err := e.Recognize(context.Background(), "/tmp/again.jpg", "/tmp/encodings.pkl"); err != nil {
		t.Errorf("worker should survive an exception, got %v", err)
	}
}
