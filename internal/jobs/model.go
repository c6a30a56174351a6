package jobs

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jo-hoe/reelsmith/internal/common"
)

// Status represents the lifecycle status of an assembly job. Transitions are
// strictly forward: pending -> processing -> completed|failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further status writes may occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Errors shared across the jobs package and its callers.
var (
	ErrNotFound       = errors.New("job not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrQueueFull      = errors.New("queue is full")
	ErrQueueNotReady  = errors.New("queue not started")
)

// ImageSlot is one timed image of the request: the clip generated from it
// covers [Start, End) of the visual track.
type ImageSlot struct {
	Source string  `json:"source"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
}

// ClipSeconds computes the duration of the clip generated from this slot.
// A non-finite or non-positive End-Start falls back to DefaultClipSeconds so
// degenerate inputs never produce empty or malformed clips; valid durations
// are floored at MinClipSeconds.
func (s ImageSlot) ClipSeconds() float64 {
	d := s.End - s.Start
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return common.DefaultClipSeconds
	}
	return math.Max(common.MinClipSeconds, d)
}

// VideoRequest is the immutable input payload of a job.
type VideoRequest struct {
	AudioSource       string      `json:"audio_source"`
	Images            []ImageSlot `json:"images"`
	TransitionSeconds float64     `json:"transition_seconds,omitempty"`
}

// Validate checks the admission constraints. It reports the first violation
// wrapped in ErrInvalidRequest and has no side effects.
func (r VideoRequest) Validate() error {
	if r.AudioSource == "" {
		return fmt.Errorf("%w: audio_source is required", ErrInvalidRequest)
	}
	if len(r.Images) == 0 {
		return fmt.Errorf("%w: images must be a non-empty list", ErrInvalidRequest)
	}
	for i, img := range r.Images {
		if img.Source == "" {
			return fmt.Errorf("%w: images[%d].source is required", ErrInvalidRequest, i)
		}
	}
	return nil
}

// QueuedJob is the payload carried on the queue. The request is denormalized
// so a worker can begin processing without re-querying the store.
type QueuedJob struct {
	JobID   string       `json:"job_id"`
	Request VideoRequest `json:"request"`
}

// JobRecord is the durable, queryable record of a job.
type JobRecord struct {
	ID        string
	Request   VideoRequest
	Status    Status
	ResultURL *string // set only on completed
	ErrorMsg  *string // set only on failed
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines persistence for JobRecords and their lifecycle. Terminal
// rows are never rewritten; implementations must make SaveResult and
// SaveError no-ops once a record is completed or failed.
type Store interface {
	CreateJob(rec *JobRecord) error
	MarkProcessing(id string, at time.Time) error
	SaveResult(id string, resultURL string, at time.Time) error
	SaveError(id string, errMsg string, at time.Time) error
	GetJob(id string) (*JobRecord, error)
	Close() error
}
