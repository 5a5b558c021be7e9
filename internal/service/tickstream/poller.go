package tickstream

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/avelios/terminal-gateway/internal/config"
	"github.com/avelios/terminal-gateway/internal/entity"
)

const (
	defaultPollInterval  = 10 * time.Millisecond
	defaultBackoffMin    = 250 * time.Millisecond
	defaultBackoffMax    = 5 * time.Second
	defaultBackoffFactor = 2.0
)

// Poller drives the detector: one long-lived loop that sweeps every symbol
// with at least one subscriber and publishes changes to the hub. Upstream
// outages are contained here: the loop backs off and retries, subscribers
// simply see no new ticks until data resumes.
type Poller struct {
	detector *Detector
	registry *Registry
	hub      *Hub

	interval      time.Duration
	backoffMin    time.Duration
	backoffMax    time.Duration
	backoffFactor float64
}

func NewPoller(detector *Detector, registry *Registry, hub *Hub, cfg config.PollerConfig) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	backoffMin := cfg.BackoffMin
	if backoffMin <= 0 {
		backoffMin = defaultBackoffMin
	}

	backoffMax := cfg.BackoffMax
	if backoffMax < backoffMin {
		backoffMax = defaultBackoffMax
	}

	backoffFactor := cfg.BackoffFactor
	if backoffFactor < 1 {
		backoffFactor = defaultBackoffFactor
	}

	return &Poller{
		detector:      detector,
		registry:      registry,
		hub:           hub,
		interval:      interval,
		backoffMin:    backoffMin,
		backoffMax:    backoffMax,
		backoffFactor: backoffFactor,
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	logrus.WithField("interval", p.interval.String()).Info("tick poller started")

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("tick poller stopped")
			return
		case <-ticker.C:
		}

		upstreamDown := false
		for _, symbol := range p.registry.ActiveSymbols() {
			quote, err := p.detector.Observe(ctx, symbol)
			if err != nil {
				if errors.Is(err, entity.ErrUpstreamUnavailable) {
					upstreamDown = true
					break
				}
				if ctx.Err() != nil {
					return
				}

				logrus.WithField("symbol", symbol).Errorf("observe failed: %v", err)
				continue
			}

			if quote != nil {
				p.hub.Publish(*quote)
			}
		}

		if !upstreamDown {
			attempt = 0
			continue
		}

		wait := p.backoffDelay(attempt, rng)
		attempt++
		logrus.WithFields(logrus.Fields{
			"retry_in": wait.String(),
			"attempt":  attempt,
		}).Warn("upstream unavailable, backing off tick polling")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) backoffDelay(attempt int, rng *rand.Rand) time.Duration {
	backoff := float64(p.backoffMin)
	for i := 0; i < attempt; i++ {
		backoff *= p.backoffFactor
		if backoff >= float64(p.backoffMax) {
			backoff = float64(p.backoffMax)
			break
		}
	}

	base := time.Duration(backoff)
	if p.backoffMax <= p.backoffMin {
		return base
	}

	jitter := time.Duration(rng.Int63n(int64(p.backoffMin) + 1))
	if base+jitter > p.backoffMax {
		return p.backoffMax
	}

	return base + jitter
}
