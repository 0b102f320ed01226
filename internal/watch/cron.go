package watch

import (
	"github.com/robfig/cron/v3"
)

// CronEngine abstracts the cron scheduler for testability.
type CronEngine interface {
	AddFunc(spec string, cmd func()) (int, error)
	Start()
	Stop()
}

// RobfigCronEngine adapts robfig/cron/v3 to CronEngine. Standard 5-field
// expressions and descriptors such as "@every 10m" are accepted.
type RobfigCronEngine struct {
	c *cron.Cron
}

// NewRobfigCronEngine creates a new cron engine using robfig/cron/v3.
func NewRobfigCronEngine() *RobfigCronEngine {
	return &RobfigCronEngine{c: cron.New()}
}

// AddFunc adds a function to be called on the given schedule.
func (r *RobfigCronEngine) AddFunc(spec string, cmd func()) (int, error) {
	id, err := r.c.AddFunc(spec, cmd)
	return int(id), err
}

// Start begins the cron scheduler in its own goroutine.
func (r *RobfigCronEngine) Start() { r.c.Start() }

// Stop halts the cron scheduler. Running jobs are not waited for.
func (r *RobfigCronEngine) Stop() { r.c.Stop() }
