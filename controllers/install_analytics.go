package controllers

import (
	"traceback/utils/logging"
)

// DebugEventType classifies resolver diagnostics for install attribution.
type DebugEventType string

const (
	EventError                              DebugEventType = "ERROR"
	EventPasteboardMultipleMatches          DebugEventType = "PASTEBOARD_MULTIPLE_MATCHES"
	EventPasteboardNotFound                 DebugEventType = "PASTEBOARD_NOT_FOUND"
	EventHeuristicsNotFound                 DebugEventType = "HEURISTICS_NOT_FOUND"
	EventHeuristicsMultipleMatches          DebugEventType = "HEURISTICS_MULTIPLE_MATCHES"
	EventHeuristicsMultipleMatchesSameScore DebugEventType = "HEURISTICS_MULTIPLE_MATCHES_SAME_SCORE"
	EventIntentLinkMatch                    DebugEventType = "INTENT_LINK_MATCH"
	EventIntentLinkMismatch                 DebugEventType = "INTENT_LINK_MISMATCH"
	EventDebugHeuristicsSuccess             DebugEventType = "DEBUG_HEURISTICS_SUCCESS"
	EventDebugHeuristicsFailure             DebugEventType = "DEBUG_HEURISTICS_FAILURE"
)

// DebugEvent is one diagnostic collected while resolving a post-install
// search. Events are gathered during the search and emitted in one pass so a
// logging failure can never change the match result.
type DebugEvent struct {
	Type    DebugEventType
	Message string
	Debug   any
}

// EmitDebugEvents writes collected diagnostics to the structured logger with
// a severity fitting each kind: hard errors and intent mismatches as errors,
// ambiguity signals as warnings, the rest as info.
func EmitDebugEvents(events []DebugEvent) {
	logger := logging.Default()
	for _, event := range events {
		msg := string(event.Type) + ": " + event.Message
		switch event.Type {
		case EventError, EventIntentLinkMismatch:
			logger.Error(msg, "debugObject", event.Debug)
		case EventPasteboardMultipleMatches,
			EventPasteboardNotFound,
			EventHeuristicsMultipleMatchesSameScore,
			EventDebugHeuristicsFailure:
			logger.Warn(msg, "debugObject", event.Debug)
		default:
			logger.Info(msg, "debugObject", event.Debug)
		}
	}
}
