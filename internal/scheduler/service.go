package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"adventbot/internal/config"
	"adventbot/pkg/logx"
)

// DailyJobID is the identity of the daily broadcast trigger.
const DailyJobID = "daily_event"

type Config struct {
	Timezone string // IANA name; empty means process-local time
}

// Service wraps a cron runner with replace-by-id job registration, so
// re-registering a job (e.g. after a restart path re-wires the app) never
// produces duplicate timers.
type Service struct {
	c   *cron.Cron
	log logx.Logger
	loc *time.Location

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(cfg Config, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("scheduler timezone: %w", err)
		}
		loc = l
	}
	return &Service{
		c:       cron.New(cron.WithLocation(loc)),
		log:     log,
		loc:     loc,
		entries: map[string]cron.EntryID{},
	}, nil
}

// RegisterDaily schedules job once per day at the given local "HH:MM".
// An existing job with the same id is replaced.
func (s *Service) RegisterDaily(id, hhmm string, job func(ctx context.Context)) error {
	hour, minute, err := config.ParseHHMM(hhmm)
	if err != nil {
		return err
	}
	spec := fmt.Sprintf("%d %d * * *", minute, hour)

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[id]; ok {
		s.c.Remove(old)
	}
	entry, err := s.c.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in scheduled job",
					logx.String("job", id),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
			}
		}()
		job(context.Background())
	})
	if err != nil {
		return err
	}
	s.entries[id] = entry
	s.log.Info("job registered",
		logx.String("job", id),
		logx.String("at", hhmm),
		logx.String("tz", s.loc.String()),
	)
	return nil
}

// Location returns the wall-clock location jobs fire in.
func (s *Service) Location() *time.Location { return s.loc }

// Registered reports whether a job with id is currently scheduled.
func (s *Service) Registered(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Jobs returns the number of registered jobs.
func (s *Service) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Service) Start() {
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("jobs", s.Jobs()))
}

// Stop waits for running jobs to finish, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	done := s.c.Stop().Done()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop cancelled", logx.Err(ctx.Err()))
	}
}
