// Package server exposes the recognition pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/andresmejia3/facemood/internal/pipeline"
	"github.com/andresmejia3/facemood/internal/types"
)

// MaxUploadSize bounds the multipart body of a recognize request.
const MaxUploadSize = 20 << 20

// Layout names the directories and asset a request's session is laid out in.
type Layout struct {
	CacheDir  string
	FilesDir  string
	AssetName string
}

// Handler serves recognize requests one at a time. Sessions share cache paths,
// so a request arriving while another runs is rejected rather than queued.
type Handler struct {
	orch   *pipeline.Orchestrator
	layout Layout
	logger *slog.Logger
	busy   sync.Mutex

	// OnOutcome, if set, is called after every finished run (e.g. to store history).
	OnOutcome func(ctx context.Context, s pipeline.Session, out pipeline.Outcome)
}

// Response is the JSON body of every recognize reply.
type Response struct {
	SessionID string        `json:"session_id"`
	State     string        `json:"state"`
	Result    *types.Result `json:"result"`
	Error     string        `json:"error,omitempty"`
}

func New(orch *pipeline.Orchestrator, layout Layout, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{orch: orch, layout: layout, logger: logger}
}

// Routes returns the mux with every endpoint registered.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/recognize", h.HandleRecognize)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			h.logger.Error("Unable to write healthcheck", "err", err)
		}
	})
	return mux
}

func (h *Handler) HandleRecognize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.busy.TryLock() {
		h.writeError(w, "A recognition is already running", http.StatusConflict)
		return
	}
	defer h.busy.Unlock()

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	file, _, err := r.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.writeError(w, "File too large (max 20MB)", http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(w, "Failed to read image: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := os.MkdirAll(h.layout.CacheDir, 0755); err != nil {
		h.writeError(w, "Failed to create cache directory: "+err.Error(), http.StatusInternalServerError)
		return
	}
	raw := pipeline.CapturePath(h.layout.CacheDir)
	if err := saveUpload(file, raw); err != nil {
		h.writeError(w, "Failed to store image: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s := pipeline.NewSession(raw, h.layout.CacheDir, h.layout.FilesDir, h.layout.AssetName)
	out := <-h.orch.Start(r.Context(), s)
	if h.OnOutcome != nil {
		h.OnOutcome(r.Context(), s, out)
	}

	resp := Response{SessionID: out.SessionID, State: out.State.String()}
	if out.Err == nil || errors.Is(out.Err, types.ErrResultParseFailure) {
		res := out.Result
		resp.Result = &res
	}
	if out.Err != nil {
		resp.Error = out.Message()
	}
	h.writeJSON(w, statusFor(out.Err), resp)
}

// statusFor maps a run's error onto an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	switch types.KindOf(err) {
	case 0:
		if err != nil {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	case types.KindResultParseFailure:
		return http.StatusOK
	case types.KindEngineUnavailable, types.KindEngineInvocationFailure:
		return http.StatusBadGateway
	case types.KindDecodeFailure, types.KindEmptyFile, types.KindInvalidInput:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func saveUpload(src io.Reader, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	h.logger.Error(message)
	http.Error(w, message, code)
}
