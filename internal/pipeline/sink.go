package pipeline

import (
	"errors"

	"github.com/andresmejia3/facemood/internal/types"
)

// Sink is the presentation layer that receives the outcome of a run.
type Sink interface {
	Publish(res types.Result)
	PublishError(msg string)
}

// Publish delivers out to sink. An unparseable engine reply still produces a
// record (the fallback), every other failure produces an error message.
func Publish(sink Sink, out Outcome) {
	if sink == nil {
		return
	}
	switch {
	case out.Err == nil:
		sink.Publish(out.Result)
	case errors.Is(out.Err, types.ErrResultParseFailure):
		sink.Publish(out.Result)
	default:
		sink.PublishError(out.Message())
	}
}
