// Package result turns the recognition engine's JSON reply into a types.Result.
package result

import (
	"bytes"
	"encoding/json"

	"github.com/andresmejia3/facemood/internal/types"
)

// Defaults substituted for fields missing from the engine's reply.
const (
	DefaultStatus  = "unknown"
	DefaultMessage = "No message"
	DefaultName    = "No name"
	DefaultEmotion = "No emotion"
	DefaultTime    = "No time"
)

// Unknown fills every non-status field of the fallback record.
const Unknown = "unknown"

// Fallback is the record shown when the engine's reply cannot be parsed at all.
func Fallback() types.Result {
	return types.Result{
		Status:  "error",
		Message: Unknown,
		Name:    Unknown,
		Emotion: Unknown,
		Time:    Unknown,
	}
}

// Decode parses raw as a JSON object. Missing or non-string fields take their
// defaults. If raw is not a JSON object the fallback record is returned together
// with a ResultParseFailure, so callers always have something to display.
func Decode(raw string) (types.Result, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Fallback(), types.NewError(types.KindResultParseFailure, "engine reply is not a JSON object", err)
	}
	if fields == nil {
		return Fallback(), types.NewError(types.KindResultParseFailure, "engine reply is null", nil)
	}

	return types.Result{
		Status:  optString(fields, "status", DefaultStatus),
		Message: optString(fields, "message", DefaultMessage),
		Name:    optString(fields, "name", DefaultName),
		Emotion: optString(fields, "emotion", DefaultEmotion),
		Time:    optString(fields, "time", DefaultTime),
	}, nil
}

func optString(fields map[string]json.RawMessage, key, def string) string {
	raw, ok := fields[key]
	if !ok {
		return def
	}
	var s string
	// json.Unmarshal accepts null into a string, so it is checked explicitly.
	if err := json.Unmarshal(raw, &s); err != nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return def
	}
	return s
}
