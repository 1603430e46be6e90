package services

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const retentionLockKey = "retention_sweep_lock"

type conversationPurger interface {
	DeleteConversationsUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionSweeper deletes conversations that have not been updated for
// maxAge. With Redis configured only one instance sweeps per interval.
type RetentionSweeper struct {
	store    conversationPurger
	redis    *redis.Client
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
	stopChan chan struct{}
}

func NewRetentionSweeper(store conversationPurger, redisClient *redis.Client, retentionDays int, interval time.Duration) *RetentionSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionSweeper{
		store:    store,
		redis:    redisClient,
		maxAge:   time.Duration(retentionDays) * 24 * time.Hour,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		stopChan: make(chan struct{}),
	}
}

func (s *RetentionSweeper) Start() {
	if s.store == nil || s.maxAge <= 0 {
		return
	}

	go s.loop()

	log.Printf("Retention sweeper started (max age %s, every %s)", s.maxAge, s.interval)
}

func (s *RetentionSweeper) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
}

func (s *RetentionSweeper) loop() {
	// Run on startup as well as by interval.
	s.Sweep(context.Background())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Sweep(context.Background())
		}
	}
}

// Sweep runs one purge pass and returns the number of conversations removed.
func (s *RetentionSweeper) Sweep(ctx context.Context) int64 {
	if s.maxAge <= 0 {
		return 0
	}

	if s.redis != nil {
		locked, err := s.redis.SetNX(ctx, retentionLockKey, "1", s.interval).Result()
		if err != nil {
			log.Printf("retention: failed to acquire lock: %v", err)
			return 0
		}
		if !locked {
			return 0
		}
	}

	cutoff := s.now().Add(-s.maxAge)
	deleted, err := s.store.DeleteConversationsUpdatedBefore(ctx, cutoff)
	if err != nil {
		log.Printf("retention: purge before %s failed: %v", cutoff.Format(time.RFC3339), err)
		return 0
	}
	if deleted > 0 {
		log.Printf("retention: deleted %d conversations idle since %s", deleted, cutoff.Format(time.RFC3339))
	}
	return deleted
}
