package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	SessionStarted Type = iota + 1
	Resumed
	BlockWritten
	BlockRetried
	BlockUnreadable
	CheckpointSaved
	VerifyStarted
	VerifyMismatch
	SessionComplete
)

var typeNames = [...]string{
	SessionStarted:  "SessionStarted",
	Resumed:         "Resumed",
	BlockWritten:    "BlockWritten",
	BlockRetried:    "BlockRetried",
	BlockUnreadable: "BlockUnreadable",
	CheckpointSaved: "CheckpointSaved",
	VerifyStarted:   "VerifyStarted",
	VerifyMismatch:  "VerifyMismatch",
	SessionComplete: "SessionComplete",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from the engine.
type Event struct {
	Type      Type
	Timestamp time.Time
	Index     int64 // block index
	Offset    int64 // byte offset of the block
	Size      int64 // bytes affected
	Error     error
}
