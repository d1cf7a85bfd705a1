// Package jobs tracks asynchronous pipeline runs for the reactive UI.
package jobs

import (
	"slices"
	"sync"
	"time"
)

// Status of a run or of one of its stages.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// StageState is the progress of one stage.
type StageState struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	// Artifact is the file the stage wrote.
	Artifact string `json:"artifact,omitempty"`

	started time.Time
}

// Snapshot is a point-in-time copy of a run, safe to serialize.
type Snapshot struct {
	ID        string       `json:"id"`
	Status    Status       `json:"status"`
	Filename  string       `json:"filename"`
	Theme     string       `json:"theme"`
	WordLimit int          `json:"word_limit"`
	Stages    []StageState `json:"stages"`
	Caption   string       `json:"caption,omitempty"`
	Story     string       `json:"story,omitempty"`
	Error     string       `json:"error,omitempty"`
	ErrorKind string       `json:"error_kind,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Job is one run. All methods are safe for concurrent use.
type Job struct {
	mu   sync.Mutex
	snap Snapshot
	now  func() time.Time
}

// ID returns the run ID.
func (j *Job) ID() string {
	return j.snap.ID
}

// StartStage marks name as running, and the run with it.
func (j *Job) StartStage(name string) {
	j.update(func(s *Snapshot, now time.Time) {
		s.Status = StatusRunning
		if st := stage(s, name); st != nil {
			st.Status = StatusRunning
			st.started = now
		}
	})
}

// FinishStage marks name complete with the artifact it produced.
func (j *Job) FinishStage(name, artifact string) {
	j.update(func(s *Snapshot, now time.Time) {
		if st := stage(s, name); st != nil {
			st.Status = StatusComplete
			st.Artifact = artifact
			st.DurationMS = now.Sub(st.started).Milliseconds()
		}
	})
}

// SetCaption records the caption text once captioning is done.
func (j *Job) SetCaption(text string) {
	j.update(func(s *Snapshot, _ time.Time) { s.Caption = text })
}

// Complete marks the run finished with its story.
func (j *Job) Complete(story string) {
	j.update(func(s *Snapshot, _ time.Time) {
		s.Status = StatusComplete
		s.Story = story
	})
}

// Fail marks the running stage and the run as failed.
func (j *Job) Fail(kind, message string) {
	j.update(func(s *Snapshot, now time.Time) {
		s.Status = StatusError
		s.Error = message
		s.ErrorKind = kind
		for i := range s.Stages {
			if s.Stages[i].Status == StatusRunning {
				s.Stages[i].Status = StatusError
				s.Stages[i].DurationMS = now.Sub(s.Stages[i].started).Milliseconds()
			}
		}
	})
}

// Snapshot returns a copy of the run's state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := j.snap
	out.Stages = slices.Clone(j.snap.Stages)
	return out
}

func (j *Job) done() (bool, time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	finished := j.snap.Status == StatusComplete || j.snap.Status == StatusError
	return finished, j.snap.UpdatedAt
}

func (j *Job) update(fn func(*Snapshot, time.Time)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	fn(&j.snap, now)
	j.snap.UpdatedAt = now
}

func stage(s *Snapshot, name string) *StageState {
	for i := range s.Stages {
		if s.Stages[i].Name == name {
			return &s.Stages[i]
		}
	}
	return nil
}

// Store holds runs in memory. Finished runs are dropped once they have been
// idle for longer than the retention period.
type Store struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	retention time.Duration
	now       func() time.Time
}

// NewStore returns an empty Store. retention <= 0 keeps runs forever.
func NewStore(retention time.Duration) *Store {
	return &Store{
		jobs:      make(map[string]*Job),
		retention: retention,
		now:       time.Now,
	}
}

// New registers a pending run with the given stages.
func (s *Store) New(filename, theme string, wordLimit int, stages ...string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()

	now := s.now()
	snap := Snapshot{
		ID:        GenerateID(RunPrefix),
		Status:    StatusPending,
		Filename:  filename,
		Theme:     theme,
		WordLimit: wordLimit,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, name := range stages {
		snap.Stages = append(snap.Stages, StageState{Name: name, Status: StatusPending})
	}
	j := &Job{snap: snap, now: s.now}
	s.jobs[snap.ID] = j
	return j
}

// Get returns the run with id. The "run-" prefix is optional.
func (s *Store) Get(id string) (*Job, bool) {
	id, ok := NormalizeID(id, RunPrefix)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

// Len returns the number of runs held after expired ones are dropped.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	return len(s.jobs)
}

func (s *Store) evictLocked() {
	if s.retention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.retention)
	for id, j := range s.jobs {
		if finished, at := j.done(); finished && at.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}
