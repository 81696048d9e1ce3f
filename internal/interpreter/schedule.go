package interpreter

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs deferred work. The returned function cancels the work and
// reports whether it was still pending.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (cancel func() bool)
}

// TimerScheduler schedules on real timers.
type TimerScheduler struct{}

func (TimerScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// ManualScheduler runs work only when its clock is advanced.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	at  time.Duration
	seq int
	f   func()
}

func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTask{at: s.now + d, seq: s.seq, f: f}
	s.tasks = append(s.tasks, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, p := range s.tasks {
			if p == t {
				s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
				return true
			}
		}
		return false
	}
}

// Advance moves the clock forward by d and runs everything that came due,
// in due order.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	now := s.now
	s.mu.Unlock()

	for {
		t := s.next(now)
		if t == nil {
			return
		}
		t.f()
	}
}

// Flush runs every pending task regardless of its due time.
func (s *ManualScheduler) Flush() {
	for {
		t := s.next(-1)
		if t == nil {
			return
		}
		t.f()
	}
}

// Pending returns the number of tasks waiting to run.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// next pops the earliest task due at or before now. A negative now means
// any task.
func (s *ManualScheduler) next(now time.Duration) *manualTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return nil
	}
	sort.SliceStable(s.tasks, func(i, j int) bool {
		if s.tasks[i].at != s.tasks[j].at {
			return s.tasks[i].at < s.tasks[j].at
		}
		return s.tasks[i].seq < s.tasks[j].seq
	})
	t := s.tasks[0]
	if now >= 0 && t.at > now {
		return nil
	}
	s.tasks = s.tasks[1:]
	if t.at > s.now {
		s.now = t.at
	}
	return t
}
