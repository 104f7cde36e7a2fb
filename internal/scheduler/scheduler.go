package scheduler

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is a periodic maintenance task
type Job struct {
	Name     string
	Interval time.Duration
	Run      func()
}

// Scheduler runs registered jobs on their own tickers until stopped.
// A job never overlaps with itself.
type Scheduler struct {
	logger   *logrus.Logger
	jobs     []Job
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

func NewScheduler(logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Scheduler{
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Every registers a job. Jobs added after Start are ignored.
func (s *Scheduler) Every(name string, interval time.Duration, run func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.logger.WithField("job", name).Warn("Scheduler already started, job ignored")
		return
	}
	if interval <= 0 {
		s.logger.WithField("job", name).Warn("Non-positive interval, job ignored")
		return
	}
	s.jobs = append(s.jobs, Job{Name: name, Interval: interval, Run: run})
}

// Start begins the scheduled tasks
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runJob(job)
	}
	s.logger.WithField("jobs", len(s.jobs)).Info("Scheduler started")
}

func (s *Scheduler) runJob(job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.execute(job)
		}
	}
}

func (s *Scheduler) execute(job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"job":   job.Name,
				"panic": r,
			}).Error("Scheduled job panicked")
		}
	}()

	start := time.Now()
	job.Run()
	s.logger.WithFields(logrus.Fields{
		"job":      job.Name,
		"duration": time.Since(start).String(),
	}).Debug("Scheduled job completed")
}

// Stop halts all jobs and waits for running ones to finish
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}
