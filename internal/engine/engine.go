// Package engine invokes the external face recognition / emotion engine.
package engine

import (
	"context"
)

// Engine is the recognition engine's single entry point.
type Engine interface {
	// Ready reports whether the engine is loaded and can take a request.
	Ready() error
	// Recognize runs recognition on imagePath against the encodings at assetPath
	// and returns the engine's raw JSON reply. It blocks for the full inference.
	Recognize(ctx context.Context, imagePath, assetPath string) (string, error)
}

// Func adapts a plain function into an always-ready Engine.
type Func func(ctx context.Context, imagePath, assetPath string) (string, error)

func (f Func) Ready() error { return nil }

func (f Func) Recognize(ctx context.Context, imagePath, assetPath string) (string, error) {
	return f(ctx, imagePath, assetPath)
}
