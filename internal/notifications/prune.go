package notifications

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner runs the notification retention job on a cron schedule.
type Pruner struct {
	manager   *Manager
	schedule  string
	retention time.Duration
	cron      *cron.Cron
}

// NewPruner creates a retention job. schedule is a standard cron
// expression; retention is how long rows are kept.
func NewPruner(manager *Manager, schedule string, retention time.Duration) *Pruner {
	return &Pruner{
		manager:   manager,
		schedule:  schedule,
		retention: retention,
		cron:      cron.New(),
	}
}

// Start registers and starts the cron job.
func (p *Pruner) Start() error {
	if _, err := p.cron.AddFunc(p.schedule, p.runOnce); err != nil {
		return err
	}
	p.cron.Start()
	log.Printf("[Notifications] Retention job scheduled (%s, keep %s)", p.schedule, p.retention)
	return nil
}

// Stop stops the cron scheduler and waits for a running job.
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}

func (p *Pruner) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-p.retention)
	if err := p.manager.PruneOlderThan(ctx, cutoff); err != nil {
		log.Printf("[Notifications] Retention job failed: %v", err)
	}
}
