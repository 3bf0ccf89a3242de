// Package jobrecorder implements JobRecorder (spec §9 ambient audit trail):
// a best-effort, non-blocking record of pipeline progress, adapted from
// fixer/issue.Tracker's mutex-guarded in-memory store + Save() idiom — here
// the persistence sink is a database table behind a buffered channel
// instead of a JSON file, so a slow or unavailable database never blocks a
// pipeline step.
package jobrecorder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rostilos/codecrow/internal/store"
)

// Level is a job_run row's severity.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is one job_run row.
type Entry struct {
	ProjectID     string
	AnalysisType  store.AnalysisType
	TriggerSource string
	Stage         string
	Level         Level
	Message       string
}

// Sink persists Entry rows; implemented by store.JobRunRepository.
type Sink interface {
	InsertJobRun(ctx context.Context, projectID, analysisType, triggerSource, stage, level, message string) error
}

// Recorder buffers Entry values on a channel and drains them on a
// background goroutine, dropping entries when the buffer is full rather
// than blocking the caller — the audit trail is best-effort, never a
// pipeline dependency (spec §9 propagation policy).
type Recorder struct {
	sink    Sink
	logger  *zap.Logger
	entries chan Entry
	done    chan struct{}
}

func New(sink Sink, logger *zap.Logger, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		sink:    sink,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
		done:    make(chan struct{}),
	}
	go r.drain()
	return r
}

func (r *Recorder) drain() {
	defer close(r.done)
	for e := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.sink.InsertJobRun(ctx, e.ProjectID, string(e.AnalysisType), e.TriggerSource, e.Stage, string(e.Level), e.Message)
		if err != nil {
			r.logger.Warn("job recorder insert failed", zap.Error(err), zap.String("stage", e.Stage))
		}
		cancel()
	}
}

// Record enqueues e, dropping it with a logged warning if the buffer is full.
func (r *Recorder) Record(e Entry) {
	select {
	case r.entries <- e:
	default:
		r.logger.Warn("job recorder buffer full, dropping entry", zap.String("stage", e.Stage))
	}
}

func (r *Recorder) Info(projectID string, analysisType store.AnalysisType, trigger, stage, message string) {
	r.Record(Entry{ProjectID: projectID, AnalysisType: analysisType, TriggerSource: trigger, Stage: stage, Level: LevelInfo, Message: message})
}

func (r *Recorder) Warn(projectID string, analysisType store.AnalysisType, trigger, stage, message string) {
	r.Record(Entry{ProjectID: projectID, AnalysisType: analysisType, TriggerSource: trigger, Stage: stage, Level: LevelWarn, Message: message})
}

func (r *Recorder) Error(projectID string, analysisType store.AnalysisType, trigger, stage, message string) {
	r.Record(Entry{ProjectID: projectID, AnalysisType: analysisType, TriggerSource: trigger, Stage: stage, Level: LevelError, Message: message})
}

// Close stops accepting new entries and waits, with no time limit of its
// own, for the buffered ones to drain; each insert is bounded by a 5s
// timeout. Record must not be called after Close.
func (r *Recorder) Close() {
	close(r.entries)
	<-r.done
}
