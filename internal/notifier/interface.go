package notifier

import (
	"context"
	"time"

	"github.com/newthinker/trademate/internal/backtest"
)

// Event types.
const (
	EventCompleted = "backtest.completed"
	EventFailed    = "backtest.failed"
)

// Event reports the outcome of an asynchronous backtest job.
type Event struct {
	Type        string          `json:"type"`
	JobID       string          `json:"job_id"`
	Symbol      string          `json:"symbol"`
	Strategy    string          `json:"strategy"`
	Stats       *backtest.Stats `json:"stats,omitempty"`
	ArchivePath string          `json:"archive_path,omitempty"`
	Error       string          `json:"error,omitempty"`
	Time        time.Time       `json:"time"`
}

// Completed builds the event for a successful job.
func Completed(jobID string, res *backtest.Result, archivePath string) Event {
	stats := res.Stats
	return Event{
		Type:        EventCompleted,
		JobID:       jobID,
		Symbol:      res.Symbol,
		Strategy:    res.Strategy,
		Stats:       &stats,
		ArchivePath: archivePath,
		Time:        time.Now().UTC(),
	}
}

// Failed builds the event for a job that returned err.
func Failed(jobID string, req backtest.Request, err error) Event {
	return Event{
		Type:     EventFailed,
		JobID:    jobID,
		Symbol:   req.Symbol,
		Strategy: req.Strategy,
		Error:    err.Error(),
		Time:     time.Now().UTC(),
	}
}

// Notifier delivers job events to an external endpoint.
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Notify delivers a single event
	Notify(ctx context.Context, event Event) error
}
