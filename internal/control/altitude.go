package control

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/san-kum/tellosup/internal/flight"
)

const DefaultClimbRate = 50

type AltitudeConfig struct {
	// Rate is the throttle magnitude used in both directions.
	Rate   int
	Period time.Duration
	// Tolerance is how close to the target, in cm, counts as reached.
	Tolerance float64
	Timeout   time.Duration
}

func DefaultAltitudeConfig() AltitudeConfig {
	return AltitudeConfig{
		Rate:    DefaultClimbRate,
		Period:  DefaultPeriod,
		Timeout: 15 * time.Second,
	}
}

// AltitudeRegulator approaches a target height with a constant climb or
// descent rate. There is no feedback beyond the stop condition.
type AltitudeRegulator struct {
	cfg     AltitudeConfig
	sensors flight.Sensors
	opts    options
}

func NewAltitudeRegulator(sensors flight.Sensors, cfg AltitudeConfig, opts ...Option) *AltitudeRegulator {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Rate == 0 {
		cfg.Rate = DefaultClimbRate
	}
	return &AltitudeRegulator{cfg: cfg, sensors: sensors, opts: buildOptions(opts)}
}

func (a *AltitudeRegulator) Config() AltitudeConfig { return a.cfg }

// MoveTo climbs or descends until the height reaches or crosses target.
// When the vehicle already sits within tolerance nothing is sent.
func (a *AltitudeRegulator) MoveTo(ctx context.Context, out flight.RateWriter, target float64) (Result, error) {
	o := &a.opts
	o.reset()
	start := o.now()

	var res Result
	h, err := a.sensors.Height()
	if err != nil {
		return res, fmt.Errorf("%w: reading height: %w", flight.ErrLinkFailure, err)
	}
	res.Final = target - h
	if math.Abs(res.Final) <= a.cfg.Tolerance {
		return res, nil
	}

	dir := 1
	if h > target {
		dir = -1
	}
	cmd := flight.RateCommand{Throttle: dir * a.cfg.Rate}
	reached := func(h float64) bool {
		if dir > 0 {
			return h >= target-a.cfg.Tolerance
		}
		return h <= target+a.cfg.Tolerance
	}

	ticker := time.NewTicker(a.cfg.Period)
	defer ticker.Stop()
	deadline, stopDeadline := newDeadline(a.cfg.Timeout)
	defer stopDeadline()

	for !reached(h) {
		if ctx.Err() != nil {
			return o.release(out, res, start, preempted(ctx))
		}
		if err := out.SendRateCommand(cmd); err != nil {
			return o.release(out, res, start, sendFailed(ctx, err))
		}
		res.Ticks++
		o.observe(res.Final, cmd)

		select {
		case <-ctx.Done():
			return o.release(out, res, start, preempted(ctx))
		case <-deadline:
			return o.release(out, res, start, fmt.Errorf("%w: height error %.0f cm after %d ticks", flight.ErrNotConverged, res.Final, res.Ticks))
		case <-ticker.C:
		}

		if h, err = a.sensors.Height(); err != nil {
			return o.release(out, res, start, fmt.Errorf("%w: reading height: %w", flight.ErrLinkFailure, err))
		}
		res.Final = target - h
		o.logger.Debug("altitude tick", "target", target, "height", h)
	}
	return o.release(out, res, start, nil)
}
