package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/andresmejia3/facemood/internal/imageproc"
	"github.com/andresmejia3/facemood/internal/types"
)

// Bridge validates the engine's inputs and calls it off the caller's goroutine.
type Bridge struct {
	engine Engine
	logger *slog.Logger
}

// NewBridge wraps e. A nil e makes every Invoke fail with EngineUnavailable.
func NewBridge(e Engine, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{engine: e, logger: logger}
}

type reply struct {
	raw string
	err error
}

// Invoke checks both inputs, then runs the engine on a background goroutine and
// waits for its raw reply. Failures are never retried.
func (b *Bridge) Invoke(ctx context.Context, imagePath, assetPath string) (string, error) {
	if err := imageproc.CheckFile(imagePath); err != nil {
		return "", err
	}
	if err := imageproc.CheckFile(assetPath); err != nil {
		return "", err
	}
	if err := checkReadable(imagePath); err != nil {
		return "", err
	}
	if err := checkReadable(assetPath); err != nil {
		return "", err
	}

	if b.engine == nil {
		return "", types.NewError(types.KindEngineUnavailable, "no recognition engine configured", nil)
	}
	if err := b.engine.Ready(); err != nil {
		return "", types.NewError(types.KindEngineUnavailable, "", err)
	}

	// Buffered so the goroutine can always finish, even if we stop waiting.
	done := make(chan reply, 1)
	start := time.Now()
	b.logger.Debug("Invoking recognition engine", "image", imagePath, "asset", assetPath)

	go func() {
		raw, err := b.engine.Recognize(ctx, imagePath, assetPath)
		done <- reply{raw: raw, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			b.logger.Error("Recognition engine failed", "error", r.err, "elapsed", time.Since(start))
			return "", types.NewError(types.KindEngineInvocationFailure, "", r.err)
		}
		b.logger.Debug("Recognition engine replied", "bytes", len(r.raw), "elapsed", time.Since(start))
		return r.raw, nil
	case <-ctx.Done():
		b.logger.Warn("Stopped waiting for recognition engine", "error", ctx.Err(), "elapsed", time.Since(start))
		return "", types.NewError(types.KindEngineInvocationFailure, "recognition cancelled", ctx.Err())
	}
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return types.NewError(types.KindMissingFile, fmt.Sprintf("%s is not readable", path), err)
	}
	return f.Close()
}
