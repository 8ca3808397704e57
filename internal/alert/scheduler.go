package alert

import (
	"context"
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"
)

// Start runs an evaluation cycle right away and then every Interval, until
// ctx is done or Stop is called. Calling Start more than once has no effect.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx)
		}()
		log.WithField("interval", s.config.Interval).Info("🚀 Alert service started.")
	})
}

// Stop prevents new cycles and waits for a running one to finish.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
	log.Info("Alert service stopped.")
}

func (s *Service) loop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runCycle()

	for {
		select {
		case <-ticker.C:
			// a stop that raced with the tick wins
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			default:
			}
			s.runCycle()
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runCycle uses its own context so shutdown lets an in-flight cycle finish.
func (s *Service) runCycle() {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("🔥 Panic recovered in alert checker: %v\n%s", r, debug.Stack())
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.CycleTimeout)
	defer cancel()

	if _, err := s.CheckAlerts(ctx); err != nil {
		log.WithError(err).Error("❌ Alert check aborted, retrying next cycle")
	}
}
