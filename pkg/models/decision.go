package models

import "time"

// Source tells which path produced a result.
type Source string

const (
	SourceLive     Source = "live"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

// Decision is gateway metadata about a result. It is never part of the
// response body, so callers cannot tell live and fallback answers apart
// structurally.
type Decision struct {
	RequestID string
	UseCase   UseCase
	Source    Source
	// Reason is the failure tag that caused a fallback.
	Reason   string
	Provider string
	Model    string
	// Shared is set when the result came from another caller's in-flight call.
	Shared  bool
	Latency time.Duration
}
