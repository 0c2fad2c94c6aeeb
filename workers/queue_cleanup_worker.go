package workers

import (
	"context"
	"log"
	"time"
)

// QueuePurger is the slice of the matchmaking service the cleanup worker
// needs: reclaim expired entries and refund their stakes.
type QueuePurger interface {
	PurgeExpired() (int, error)
}

// PollExpiredQueueEntries sweeps the matchmaking queue on an interval,
// deleting entries past their TTL and refunding the locked stakes. Entries
// that found a match in the meantime are left alone.
func PollExpiredQueueEntries(ctx context.Context, purger QueuePurger, pollInterval time.Duration) {
	log.Println("Starting matchmaking queue cleanup...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Queue cleanup stopped.")
			return
		case <-ticker.C:
			purged, err := purger.PurgeExpired()
			if err != nil {
				log.Printf("Error purging expired queue entries: %v", err)
				continue
			}
			if purged > 0 {
				log.Printf("Purged %d expired queue entrie(s), stakes refunded.", purged)
			}
		}
	}
}
