package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/progress"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/db"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/server/sse"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Kind identifies the type of a long-running job.
type Kind string

const (
	KindProjectImport  Kind = "project_import"
	KindMatchingIngest Kind = "matching_ingest"
)

// State is the lifecycle state of a job.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Event is published to the optional event publisher on job transitions.
type Event struct {
	JobID       string    `json:"job_id"`
	Kind        Kind      `json:"kind"`
	ProjectPath string    `json:"project_path"`
	State       State     `json:"state"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher receives job lifecycle events. Implementations must not block.
type Publisher interface {
	PublishJobEvent(Event)
}

// Job is one tracked long-running operation.
type Job struct {
	ID          string
	Kind        Kind
	ProjectPath string

	mu         sync.Mutex
	state      State
	errText    string
	warnings   []string
	startedAt  time.Time
	finishedAt time.Time
}

// Snapshot is the externally visible state of a job.
type Snapshot struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	ProjectPath string     `json:"project_path"`
	State       State      `json:"state"`
	Error       string     `json:"error,omitempty"`
	Warnings    []string   `json:"warnings,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Snapshot returns a copy of the job's current state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := Snapshot{
		ID:          j.ID,
		Kind:        j.Kind,
		ProjectPath: j.ProjectPath,
		State:       j.state,
		Error:       j.errText,
		Warnings:    append([]string(nil), j.warnings...),
		StartedAt:   j.startedAt,
	}
	if !j.finishedAt.IsZero() {
		finished := j.finishedAt
		s.FinishedAt = &finished
	}
	return s
}

// recorder folds a job's progress stream back into its tracked state.
type recorder struct {
	job *Job
}

func (r recorder) Send(m progress.Message) {
	r.job.mu.Lock()
	defer r.job.mu.Unlock()
	switch m.Status {
	case progress.StatusWarning:
		r.job.warnings = append(r.job.warnings, m.Text)
	case progress.StatusError:
		r.job.state = StateFailed
		r.job.errText = m.Text
		r.job.finishedAt = time.Now()
	case progress.StatusComplete:
		r.job.state = StateCompleted
		r.job.finishedAt = time.Now()
	}
}

// Runner executes jobs, one goroutine each, serializing write access per
// project through the project store's write lock.
type Runner struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	active    int
	hub       *sse.Hub
	publisher Publisher
}

// NewRunner creates a runner. publisher may be nil.
func NewRunner(hub *sse.Hub, publisher Publisher) *Runner {
	return &Runner{jobs: make(map[string]*Job), hub: hub, publisher: publisher}
}

// Submit starts fn as a tracked background job against the given project
// store. The returned job can be polled immediately; progress streams
// through the SSE hub under the job's id.
func (r *Runner) Submit(kind Kind, store *db.Store, fn func(ctx context.Context, sink progress.Sink) error) *Job {
	job := &Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		ProjectPath: store.Path(),
		state:       StateRunning,
		startedAt:   time.Now(),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.active++
	r.mu.Unlock()

	r.publish(job, "")

	go func() {
		defer func() {
			r.mu.Lock()
			r.active--
			r.mu.Unlock()
		}()

		// Jobs against the same project must not interleave writes.
		store.LockWrites()
		defer store.UnlockWrites()

		sink := progress.Fanout{recorder{job: job}, r.hub.NewSink(job.ID)}
		log.Infof("Job %s (%s) started for project %s", job.ID, kind, job.ProjectPath)

		err := fn(context.Background(), sink)

		snapshot := job.Snapshot()
		if err != nil && snapshot.State == StateRunning {
			// The job returned an error without sending a terminal status.
			recorder{job: job}.Send(progress.Message{Status: progress.StatusError, Text: err.Error()})
			snapshot = job.Snapshot()
		}
		if err == nil && snapshot.State == StateRunning {
			recorder{job: job}.Send(progress.Message{Status: progress.StatusComplete})
			snapshot = job.Snapshot()
		}

		r.publish(job, snapshot.Error)
		log.Infof("Job %s finished with state %s", job.ID, snapshot.State)
	}()

	return job
}

// Get returns the tracked job for id, or nil.
func (r *Runner) Get(id string) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

// ActiveCount returns the number of currently running jobs.
func (r *Runner) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Runner) publish(job *Job, message string) {
	if r.publisher == nil {
		return
	}
	snapshot := job.Snapshot()
	r.publisher.PublishJobEvent(Event{
		JobID:       job.ID,
		Kind:        job.Kind,
		ProjectPath: job.ProjectPath,
		State:       snapshot.State,
		Message:     message,
		Timestamp:   time.Now(),
	})
}
