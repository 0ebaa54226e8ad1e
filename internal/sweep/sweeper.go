// Package sweep runs the background maturation loop: it finds users with
// earnings past their maturation window and confirms them in batches.
package sweep

import (
	"context"
	"log"
	"time"
)

type MaturationService interface {
	MatureEarnings(ctx context.Context, userID string, limit int) (int, error)
}

type DueLister interface {
	UsersWithDue(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type Sweeper struct {
	service   MaturationService
	dueLister DueLister
	interval  time.Duration
	userBatch int
	entryCap  int
}

func New(service MaturationService, dueLister DueLister, interval time.Duration, userBatch, entryCap int) *Sweeper {
	return &Sweeper{
		service:   service,
		dueLister: dueLister,
		interval:  interval,
		userBatch: userBatch,
		entryCap:  entryCap,
	}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweepOnce(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce matures due earnings for up to userBatch users. A failure for
// one user does not stop the sweep; the entry stays pending and the next
// tick retries it.
func (s *Sweeper) sweepOnce(ctx context.Context) {
	userIDs, err := s.dueLister.UsersWithDue(ctx, time.Now(), s.userBatch)
	if err != nil {
		log.Printf("sweep: listing users with due earnings: %v", err)
		return
	}
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return
		}
		matured, err := s.service.MatureEarnings(ctx, userID, s.entryCap)
		if err != nil {
			log.Printf("sweep: maturing earnings for user %s: %v", userID, err)
			continue
		}
		if matured > 0 {
			log.Printf("sweep: matured %d earnings for user %s", matured, userID)
		}
	}
}
