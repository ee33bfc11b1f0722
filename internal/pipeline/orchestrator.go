// Package pipeline sequences a capture through correction, resizing, asset
// materialization, recognition and decoding.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/andresmejia3/facemood/internal/asset"
	"github.com/andresmejia3/facemood/internal/engine"
	"github.com/andresmejia3/facemood/internal/imageproc"
	"github.com/andresmejia3/facemood/internal/result"
	"github.com/andresmejia3/facemood/internal/types"
)

// Options configures the normalization stages.
type Options struct {
	MaxWidth    int
	MaxHeight   int
	JPEGQuality int
	AssetName   string
}

// Outcome is the final state of one run.
type Outcome struct {
	SessionID string
	State     State
	Result    types.Result
	Err       error
	Elapsed   time.Duration
}

// Orchestrator runs sessions through the pipeline stages in strict order.
type Orchestrator struct {
	opts   Options
	assets *asset.Materializer
	bridge *engine.Bridge
	logger *slog.Logger

	// OnTransition, if set, is called synchronously as each state is entered.
	OnTransition func(sessionID string, s State)
}

// New wires an Orchestrator.
func New(opts Options, assets *asset.Materializer, bridge *engine.Bridge, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = imageproc.DefaultJPEGQuality
	}
	return &Orchestrator{opts: opts, assets: assets, bridge: bridge, logger: logger}
}

// Run executes every stage for s on the calling goroutine and stops at the first failure.
func (o *Orchestrator) Run(ctx context.Context, s Session) Outcome {
	start := time.Now()
	log := o.logger.With("session", s.ID)
	o.enter(s.ID, StateIdle)

	fail := func(stage State, err error) Outcome {
		o.enter(s.ID, StateFailed)
		log.Warn("Pipeline failed", "stage", stage, "kind", types.KindOf(err), "error", err)
		out := Outcome{SessionID: s.ID, State: StateFailed, Err: err, Elapsed: time.Since(start)}
		if errors.Is(err, types.ErrResultParseFailure) {
			out.Result = result.Fallback()
		}
		return out
	}

	// 1. Orientation
	o.enter(s.ID, StateCorrecting)
	oriented, err := imageproc.CorrectFile(s.RawImagePath, s.CorrectedImagePath, o.opts.JPEGQuality)
	if err != nil {
		return fail(StateCorrecting, err)
	}
	log.Debug("Capture corrected", "rotation", oriented.Rotation, "path", s.CorrectedImagePath)

	// 2. Resize
	o.enter(s.ID, StateResizing)
	resized, err := imageproc.Resize(oriented.Image, o.opts.MaxWidth, o.opts.MaxHeight)
	if err != nil {
		return fail(StateResizing, err)
	}
	if err := imageproc.Save(resized, s.ResizedImagePath, o.opts.JPEGQuality); err != nil {
		return fail(StateResizing, err)
	}
	log.Debug("Capture resized", "width", resized.Bounds().Dx(), "height", resized.Bounds().Dy())

	// 3. Encodings asset
	o.enter(s.ID, StateMaterializingAsset)
	if o.assets == nil {
		return fail(StateMaterializingAsset, types.NewError(types.KindMissingFile, "no asset source configured", nil))
	}
	if _, err := o.assets.Materialize(o.opts.AssetName, s.AssetPath); err != nil {
		return fail(StateMaterializingAsset, err)
	}

	// 4. Recognition
	o.enter(s.ID, StateInvoking)
	if o.bridge == nil {
		return fail(StateInvoking, types.NewError(types.KindEngineUnavailable, "no recognition bridge configured", nil))
	}
	raw, err := o.bridge.Invoke(ctx, s.ResizedImagePath, s.AssetPath)
	if err != nil {
		return fail(StateInvoking, err)
	}

	// 5. Decode
	o.enter(s.ID, StateDecoding)
	res, err := result.Decode(raw)
	if err != nil {
		return fail(StateDecoding, err)
	}

	o.enter(s.ID, StateDone)
	elapsed := time.Since(start)
	log.Info("Pipeline finished", "status", res.Status, "name", res.Name, "emotion", res.Emotion, "elapsed", elapsed)
	return Outcome{SessionID: s.ID, State: StateDone, Result: res, Elapsed: elapsed}
}

// Start runs s on a background goroutine. The channel yields exactly one Outcome and is then closed.
func (o *Orchestrator) Start(ctx context.Context, s Session) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		out <- o.Run(ctx, s)
	}()
	return out
}

// RunAndPublish runs s in the background, waits on the caller's goroutine and
// hands the outcome to sink exactly once.
func (o *Orchestrator) RunAndPublish(ctx context.Context, s Session, sink Sink) Outcome {
	out := <-o.Start(ctx, s)
	Publish(sink, out)
	return out
}

func (o *Orchestrator) enter(sessionID string, s State) {
	o.logger.Debug("Pipeline state", "session", sessionID, "state", s)
	if o.OnTransition != nil {
		o.OnTransition(sessionID, s)
	}
}

// Message is the user-facing text for a failed outcome, empty on success.
func (out Outcome) Message() string {
	if out.Err == nil {
		return ""
	}
	var pe *types.PipelineError
	if !errors.As(out.Err, &pe) {
		return fmt.Sprintf("Error: %v", out.Err)
	}
	detail := pe.Detail
	if pe.Err != nil {
		if detail != "" {
			detail += ": "
		}
		detail += pe.Err.Error()
	}

	switch pe.Kind {
	case types.KindEngineUnavailable:
		return "Error: recognition engine is not available."
	case types.KindEngineInvocationFailure:
		return "Error: recognition engine failed: " + detail
	case types.KindResultParseFailure:
		return "Error: failed to parse the recognition result."
	case types.KindDecodeFailure:
		return "Error: the photo could not be decoded."
	case types.KindEmptyFile:
		return "Error: the photo is empty: " + detail
	case types.KindMissingFile:
		return "Error: a required file is missing: " + detail
	case types.KindInvalidInput:
		return "Error: invalid input: " + detail
	default:
		return fmt.Sprintf("Error: %v", out.Err)
	}
}
