package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"feedsync/config"
	"feedsync/services"
)

// Runner imports one feed.
type Runner interface {
	Run(ctx context.Context, fc *config.FeedConfig) (*services.Result, error)
}

var ErrUnknownFeed = errors.New("unknown feed")

type Scheduler struct {
	cfg    *config.Config
	runner Runner
	logger *slog.Logger
	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup

	ctx context.Context
}

func New(cfg *config.Config, runner Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("component", "scheduler"),
		cron:   cron.New(),
		stopCh: make(chan struct{}),
		ctx:    context.Background(),
	}
}

// Start registers every enabled feed. A feed's own schedule wins over
// IMPORT_CRON; feeds with neither fall back to the IMPORT_INTERVAL ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx

	var unscheduled []*config.FeedConfig
	for _, fc := range s.feeds() {
		spec := fc.Schedule
		if spec == "" {
			spec = s.cfg.Scheduler.Cron
		}
		if spec == "" {
			unscheduled = append(unscheduled, fc)
			continue
		}

		if _, err := s.cron.AddFunc(spec, func() { s.runFeed(ctx, fc) }); err != nil {
			return fmt.Errorf("feed %s: invalid cron expression %q: %w", fc.ID, spec, err)
		}
		s.logger.Info("feed scheduled", "feed", fc.ID, "cron", spec)
	}
	s.cron.Start()

	switch {
	case len(unscheduled) == 0:
	case s.cfg.Scheduler.Interval > 0:
		s.logger.Info("starting interval scheduler", "interval", s.cfg.Scheduler.Interval, "feeds", len(unscheduled))
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					for _, fc := range unscheduled {
						s.runFeed(ctx, fc)
					}
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	default:
		for _, fc := range unscheduled {
			s.logger.Info("no schedule configured, feed runs on demand only", "feed", fc.ID)
		}
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
	s.wg.Wait()
}

// Trigger starts an import of feedID in the background.
func (s *Scheduler) Trigger(feedID string) error {
	fc, ok := s.cfg.Feeds[feedID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFeed, feedID)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runFeed(s.ctx, fc)
	}()
	return nil
}

func (s *Scheduler) runFeed(ctx context.Context, fc *config.FeedConfig) {
	_, err := s.runner.Run(ctx, fc)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrImportRunning):
		s.logger.Info("previous import still running, skipping", "feed", fc.ID)
	default:
		s.logger.Error("scheduled import failed", "feed", fc.ID, "error", err)
	}
}

func (s *Scheduler) feeds() []*config.FeedConfig {
	var feeds []*config.FeedConfig
	for _, fc := range s.cfg.Feeds {
		if fc.Enabled {
			feeds = append(feeds, fc)
		}
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].ID < feeds[j].ID })
	return feeds
}
