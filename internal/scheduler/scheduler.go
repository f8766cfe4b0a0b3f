package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"

	"PortfolioTracker/internal/notifier"
	"PortfolioTracker/internal/tracker"
	"PortfolioTracker/internal/updater"

	"github.com/robfig/cron/v3"
)

// Service is the tracker surface the scheduled jobs drive.
type Service interface {
	Snapshot(ctx context.Context) (*tracker.View, error)
	Analyze(ctx context.Context) (*tracker.Analysis, error)
	UpdatePrices(ctx context.Context, opts updater.Options) (*updater.Result, error)
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Service  Service
	Notifier notifier.Notifier
	Ctx      context.Context
	// NoTargets skips analyst targets on scheduled updates.
	NoTargets bool
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, svc Service, n notifier.Notifier) *Scheduler {
	if n == nil {
		n = notifier.NoopNotifier{}
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Service:  svc,
		Notifier: n,
		Ctx:      ctx,
	}
}

// RegisterAll registers the price update and the report task. An empty
// expression leaves that task unscheduled.
func (s *Scheduler) RegisterAll(updateCron, reportCron string) error {
	if updateCron != "" {
		if _, err := s.Cron.AddFunc(updateCron, s.updateTask); err != nil {
			return fmt.Errorf("register update task: %w", err)
		}
	}
	if reportCron != "" {
		if _, err := s.Cron.AddFunc(reportCron, s.reportTask); err != nil {
			return fmt.Errorf("register report task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunNow updates prices and then reports, as on startup.
func (s *Scheduler) RunNow() {
	s.updateTask()
	s.reportTask()
}

func (s *Scheduler) updateTask() {
	log.Println("[INFO] running price update")
	res, err := s.Service.UpdatePrices(s.Ctx, updater.Options{NoTargets: s.NoTargets})
	if err != nil {
		log.Printf("[ERROR] price update: %v", err)
		s.trySend(notifier.FormatError("Price update", err))
		return
	}
	for _, w := range res.Warnings {
		log.Printf("[WARN] %s", w)
	}
	if res.Changed() || len(res.Warnings) > 0 {
		s.trySend(notifier.FormatUpdate(res))
	}
}

func (s *Scheduler) reportTask() {
	log.Println("[INFO] running analysis")
	a, err := s.Service.Analyze(s.Ctx)
	if err != nil {
		log.Printf("[ERROR] analysis: %v", err)
		s.trySend(notifier.FormatError("Analysis", err))
		return
	}
	s.trySend(notifier.FormatSnapshot(a.Snapshot, a.Year, a.Currency))
}

// HandleCommand processes a chat command and returns the reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	cmd, _, _ := strings.Cut(strings.ToLower(command), "@")
	switch cmd {
	case "/summary", "/start":
		v, err := s.Service.Snapshot(ctx)
		if err != nil {
			return notifier.FormatError("Summary", err)
		}
		return notifier.FormatSnapshot(v.Snapshot, v.Year, v.Currency)
	case "/report":
		a, err := s.Service.Analyze(ctx)
		if err != nil {
			return notifier.FormatError("Analysis", err)
		}
		return notifier.FormatSnapshot(a.Snapshot, a.Year, a.Currency) +
			fmt.Sprintf("\n\n%d file(s) written", len(a.Files))
	case "/update":
		res, err := s.Service.UpdatePrices(ctx, updater.Options{NoTargets: s.NoTargets})
		if err != nil {
			return notifier.FormatError("Price update", err)
		}
		return notifier.FormatUpdate(res)
	default:
		return notifier.HelpText
	}
}

func (s *Scheduler) trySend(text string) {
	if err := notifier.SendWithRetry(s.Ctx, s.Notifier, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
