package proximity

import (
	"time"

	"github.com/rotisserie/eris"
)

// Attempt is one step of the failover schedule: which endpoint to call, how
// long to give it, and how long to wait before calling.
type Attempt struct {
	Endpoint string
	Timeout  time.Duration
	Delay    time.Duration
}

// ScheduleConfig describes the endpoint ladder a query walks on failure.
type ScheduleConfig struct {
	// Primary is the endpoint tried first and retried once.
	Primary string
	// Mirrors are tried in order after the primary retry, one attempt each.
	Mirrors []string
	// InitialTimeout bounds the first primary attempt. Default: 8s.
	InitialTimeout time.Duration
	// RetryTimeout bounds every later attempt; must be >= InitialTimeout.
	// Default: 20s.
	RetryTimeout time.Duration
	// InitialDelay is the pause before the primary retry. Default: 500ms.
	InitialDelay time.Duration
	// DelayMultiplier scales the pause between subsequent attempts; must be
	// > 1 so delays grow strictly. Default: 2.
	DelayMultiplier float64
}

func (cfg ScheduleConfig) withDefaults() ScheduleConfig {
	if cfg.InitialTimeout <= 0 {
		cfg.InitialTimeout = 8 * time.Second
	}
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = 20 * time.Second
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 500 * time.Millisecond
	}
	if cfg.DelayMultiplier <= 0 {
		cfg.DelayMultiplier = 2
	}
	return cfg
}

// BuildSchedule expands the config into the explicit attempt plan:
//
//	1. primary, InitialTimeout, no delay
//	2. primary, RetryTimeout, InitialDelay
//	3. mirror[0], RetryTimeout, InitialDelay × multiplier
//	4. mirror[1], RetryTimeout, InitialDelay × multiplier²  ... and so on.
//
// The plan always has 2+len(Mirrors) attempts with strictly increasing
// delays after the first. An invalid config fails here, at startup, never
// mid-query.
func BuildSchedule(cfg ScheduleConfig) ([]Attempt, error) {
	cfg = cfg.withDefaults()

	if cfg.Primary == "" {
		return nil, eris.New("proximity: schedule needs a primary endpoint")
	}
	if len(cfg.Mirrors) == 0 {
		return nil, eris.New("proximity: schedule needs at least one mirror endpoint")
	}
	for i, m := range cfg.Mirrors {
		if m == "" {
			return nil, eris.Errorf("proximity: mirror %d is empty", i)
		}
		if m == cfg.Primary {
			return nil, eris.Errorf("proximity: mirror %d duplicates the primary endpoint", i)
		}
	}
	if cfg.RetryTimeout < cfg.InitialTimeout {
		return nil, eris.Errorf("proximity: retry timeout %s must be >= initial timeout %s",
			cfg.RetryTimeout, cfg.InitialTimeout)
	}
	if cfg.DelayMultiplier <= 1 {
		return nil, eris.Errorf("proximity: delay multiplier %.2f must exceed 1", cfg.DelayMultiplier)
	}

	plan := make([]Attempt, 0, 2+len(cfg.Mirrors))
	plan = append(plan,
		Attempt{Endpoint: cfg.Primary, Timeout: cfg.InitialTimeout, Delay: 0},
		Attempt{Endpoint: cfg.Primary, Timeout: cfg.RetryTimeout, Delay: cfg.InitialDelay},
	)

	delay := cfg.InitialDelay
	for _, mirror := range cfg.Mirrors {
		delay = time.Duration(float64(delay) * cfg.DelayMultiplier)
		plan = append(plan, Attempt{Endpoint: mirror, Timeout: cfg.RetryTimeout, Delay: delay})
	}

	return plan, nil
}
