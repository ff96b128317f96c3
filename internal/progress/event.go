package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart        Stage = "RUN_START"
	StagePageFetched     Stage = "PAGE_FETCHED"
	StagePageRendered    Stage = "PAGE_RENDERED"
	StagePageReduced     Stage = "PAGE_REDUCED"
	StagePageSegmented   Stage = "PAGE_SEGMENTED"
	StageChunkStructured Stage = "CHUNK_STRUCTURED"
	StageChunkRejected   Stage = "CHUNK_REJECTED"
	StagePageMerged      Stage = "PAGE_MERGED"
	StagePageFailed      Stage = "PAGE_FAILED"
	StageRunDone         Stage = "RUN_DONE"
)

// Event is one milestone of a pipeline run.
type Event struct {
	// RunID identifies the run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC emission time.
	TS    time.Time
	Stage Stage
	// Scope is the site or operator the run belongs to.
	Scope string
	URL   string
	// Chunk is the title hint of the chunk for chunk stages.
	Chunk string
	// Chunks is the number of chunks a segmented page produced.
	Chunks     int64
	Structured int64
	Rejected   int64
	Appended   int64
	Updated    int64
	// Bytes is the document or reduced text size, depending on stage.
	Bytes int64
	Dur   time.Duration
	// Note carries low-volume context such as an error message.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StagePageFetched, StagePageRendered, StagePageReduced, StagePageSegmented,
		StagePageMerged, StagePageFailed:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	case StageChunkStructured, StageChunkRejected:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
