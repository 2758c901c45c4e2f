package jobs

import (
	"context"
	"log"
	"time"

	"github.com/zentinel/zentinel/internal/services"
)

// DigestSender posts one digest for a filter
type DigestSender interface {
	Send(ctx context.Context, f services.FilterState) (*services.DigestResult, error)
}

// DigestScheduler posts the production digest to Slack on a fixed interval
type DigestScheduler struct {
	sender  DigestSender
	filter  services.FilterState
	timeout time.Duration
}

// NewDigestScheduler creates a scheduler that sends digests for filter
func NewDigestScheduler(sender DigestSender, filter services.FilterState) *DigestScheduler {
	return &DigestScheduler{
		sender:  sender,
		filter:  filter,
		timeout: time.Minute,
	}
}

// RunOnce sends a single digest
func (s *DigestScheduler) RunOnce(ctx context.Context) (*services.DigestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sender.Send(ctx, s.filter)
}

// Start begins the periodic digests
func (s *DigestScheduler) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.RunOnce(context.Background())
			if err != nil {
				log.Printf("Digest scheduler error: %v", err)
			} else {
				log.Printf("Digest scheduler: posted digest with %d production problems (%d listed)", res.Problems, res.Listed)
			}
		case <-stop:
			log.Println("Digest scheduler stopped")
			return
		}
	}
}
