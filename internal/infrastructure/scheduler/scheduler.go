package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

var (
	ErrSchedulerNotRunning  = errors.New("scheduler is not running")
	ErrJobNotFound          = errors.New("job not found")
	ErrJobAlreadyRegistered = errors.New("job already registered")
	ErrInvalidConfig        = errors.New("invalid scheduler configuration")
)

// JobStatus represents the outcome of the latest run of a job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobFunc is the work of a scheduled job
type JobFunc func(ctx context.Context) error

// JobRun records the latest run of a named job
type JobRun struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Runs        int        `json:"runs"`
}

// Config holds scheduler configuration
type Config struct {
	Location   *time.Location
	JobTimeout time.Duration
}

type registeredJob struct {
	fn  JobFunc
	run JobRun
}

// Scheduler runs settlement maintenance jobs on cron schedules. Each job
// runs in singleton mode: a run that is still going when the next tick
// fires causes that tick to be skipped.
type Scheduler struct {
	config Config
	cron   gocron.Scheduler
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	jobs      map[string]*registeredJob
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
}

// New creates a scheduler. Jobs are added with Register and begin firing
// after Start.
func New(cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.JobTimeout <= 0 {
		return nil, fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cron, err := gocron.NewScheduler(gocron.WithLocation(cfg.Location))
	if err != nil {
		return nil, fmt.Errorf("failed to create cron scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		config: cfg,
		cron:   cron,
		logger: logger.Named("scheduler"),
		now:    time.Now,
		jobs:   make(map[string]*registeredJob),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Register adds a job on a five-field cron expression
func (s *Scheduler) Register(name, schedule string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyRegistered, name)
	}

	_, err := s.cron.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(func() {
			if err := s.run(s.ctx, name); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Debug("scheduled run finished with error", zap.String("job", name), zap.Error(err))
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s (%q): %w", name, schedule, err)
	}

	s.jobs[name] = &registeredJob{
		fn:  fn,
		run: JobRun{Name: name, Schedule: schedule, Status: JobStatusPending},
	}
	s.logger.Info("job registered", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

// Start begins firing registered jobs
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.Int("jobs", len(s.jobs)),
		zap.String("location", s.config.Location.String()),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	s.cancel()
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// RunNow runs a job synchronously outside its schedule
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()
	if !running {
		return ErrSchedulerNotRunning
	}
	return s.run(ctx, name)
}

// Runs returns the latest run record of every job, sorted by name
func (s *Scheduler) Runs() []JobRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobRun, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.run)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

func (s *Scheduler) run(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	started := s.now()
	job.run.Status = JobStatusRunning
	job.run.StartedAt = &started
	job.run.CompletedAt = nil
	job.run.Error = ""
	job.run.Runs++
	s.mu.Unlock()

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	s.logger.Info("job started", zap.String("job", name))
	err := safeCall(jobCtx, job.fn)

	s.mu.Lock()
	completed := s.now()
	job.run.CompletedAt = &completed
	if err != nil {
		job.run.Status = JobStatusFailed
		job.run.Error = err.Error()
	} else {
		job.run.Status = JobStatusSuccess
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed",
			zap.String("job", name),
			zap.Duration("elapsed", completed.Sub(started)),
			zap.Error(err))
		return err
	}
	s.logger.Info("job completed",
		zap.String("job", name),
		zap.Duration("elapsed", completed.Sub(started)))
	return nil
}

func safeCall(ctx context.Context, fn JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// PreviousDay returns the calendar day before now in loc, as midnight UTC,
// the form ledger attribution dates take
func PreviousDay(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc).AddDate(0, 0, -1)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
