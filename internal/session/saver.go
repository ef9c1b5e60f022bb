package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Saveable is anything the saver can persist.
type Saveable interface {
	Save(ctx context.Context) (bool, error)
}

// Saver persists a session in the background on an interval and on demand,
// so output pumps never block on the metadata store.
type Saver struct {
	target    Saveable
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
	requestCh chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	finalErr  error
}

// NewSaver starts a saver for target. It saves every interval and whenever
// Request is called.
func NewSaver(target Saveable, interval time.Duration, logger *zap.Logger) *Saver {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Saver{
		target:    target,
		interval:  interval,
		timeout:   5 * time.Second,
		logger:    logger,
		requestCh: make(chan struct{}, 1), // coalesces requests
		stopCh:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.saveWorker()

	return s
}

// saveWorker runs saves until the saver is closed, then saves once more.
func (s *Saver) saveWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.save()
		case <-s.requestCh:
			s.save()
		case <-s.stopCh:
			s.finalErr = s.save()
			return
		}
	}
}

func (s *Saver) save() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	wrote, err := s.target.Save(ctx)
	if errors.Is(err, ErrRestoreFailed) {
		s.logger.Warn("session save skipped", zap.Error(err))
		return err
	}
	if err != nil {
		s.logger.Error("session save failed", zap.Error(err))
		return err
	}
	if wrote {
		s.logger.Debug("session saved")
	}
	return nil
}

// Request asks for a save as soon as possible. It never blocks; requests
// made while one is pending are merged.
func (s *Saver) Request() {
	select {
	case s.requestCh <- struct{}{}:
	default:
	}
}

// Close stops the worker after a final save and returns that save's error.
func (s *Saver) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
	})
	return s.finalErr
}
