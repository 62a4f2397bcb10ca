// Package scheduler implements single-tagged delayed callbacks: at most
// one pending task per tag, with scheduling a tag canceling whatever
// task was previously registered under it.
package scheduler

import (
	"log"
	"sync"
	"time"
)

// Scheduler holds at most one pending *time.Timer per non-empty tag.
type Scheduler struct {
	mu    sync.Mutex
	tasks map[string]*time.Timer
}

// New creates an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{tasks: make(map[string]*time.Timer)}
}

// Schedule runs cb after d, under tag. If tag is non-empty and a task is
// already registered under it, that prior task is canceled first so
// only the new callback ever runs. An empty tag schedules a fire-and-
// forget task with no dedup key.
func (s *Scheduler) Schedule(tag string, d time.Duration, cb func()) {
	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("scheduler: task %q panicked: %v", tag, r)
			}
		}()
		if tag != "" {
			s.mu.Lock()
			delete(s.tasks, tag)
			s.mu.Unlock()
		}
		cb()
	}

	if tag == "" {
		time.AfterFunc(d, wrapped)
		return
	}

	s.mu.Lock()
	if prior, ok := s.tasks[tag]; ok {
		prior.Stop()
	}
	s.tasks[tag] = time.AfterFunc(d, wrapped)
	s.mu.Unlock()
}

// Cancel removes and stops the task registered under tag, if any.
func (s *Scheduler) Cancel(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[tag]; ok {
		t.Stop()
		delete(s.tasks, tag)
	}
}

// CancelAll stops and drains every pending task.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tag, t := range s.tasks {
		t.Stop()
		delete(s.tasks, tag)
	}
}
