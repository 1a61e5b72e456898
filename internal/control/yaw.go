package control

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/san-kum/tellosup/internal/flight"
)

const (
	DefaultPeriod        = 100 * time.Millisecond
	DefaultYawTolerance  = 1.0
	DefaultYawLimit      = 500.0
	DefaultIntegralLimit = 1000.0
)

type YawConfig struct {
	Gains  Gains
	Period time.Duration
	// Tolerance is the convergence band in degrees.
	Tolerance   float64
	OutputLimit float64
	// IntegralLimit bounds the accumulated error in degree-seconds.
	IntegralLimit float64
	// Wrap selects shortest-path error instead of the raw difference.
	Wrap    bool
	Timeout time.Duration
}

func DefaultYawConfig() YawConfig {
	return YawConfig{
		Gains:         DefaultGains(),
		Period:        DefaultPeriod,
		Tolerance:     DefaultYawTolerance,
		OutputLimit:   DefaultYawLimit,
		IntegralLimit: DefaultIntegralLimit,
		Wrap:          true,
		Timeout:       20 * time.Second,
	}
}

// YawRegulator turns the vehicle to a heading with a PID loop on the yaw
// rate channel.
type YawRegulator struct {
	cfg     YawConfig
	sensors flight.Sensors
	opts    options
}

func NewYawRegulator(sensors flight.Sensors, cfg YawConfig, opts ...Option) *YawRegulator {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	return &YawRegulator{cfg: cfg, sensors: sensors, opts: buildOptions(opts)}
}

func (r *YawRegulator) Config() YawConfig { return r.cfg }

// Error returns the signed error from current to target under the
// configured wrap policy.
func (r *YawRegulator) Error(target, current float64) float64 {
	if r.cfg.Wrap {
		return ShortestAngle(target - current)
	}
	return target - current
}

// RotateTo drives the heading to target. It returns when the error is
// within tolerance, ctx is cancelled, a sensor or link call fails, or the
// timeout elapses; in every case a final zero-rate command is sent first.
func (r *YawRegulator) RotateTo(ctx context.Context, out flight.RateWriter, target float64) (Result, error) {
	o := &r.opts
	o.reset()
	start := o.now()

	var res Result
	current, err := r.sensors.Yaw()
	if err != nil {
		return o.release(out, res, start, fmt.Errorf("%w: reading yaw: %w", flight.ErrLinkFailure, err))
	}

	pid := NewPID(r.cfg.Gains, r.cfg.IntegralLimit, r.cfg.OutputLimit)
	pid.Start(start)

	ticker := time.NewTicker(r.cfg.Period)
	defer ticker.Stop()
	deadline, stopDeadline := newDeadline(r.cfg.Timeout)
	defer stopDeadline()

	res.Final = r.Error(target, current)
	for math.Abs(res.Final) > r.cfg.Tolerance {
		select {
		case <-ctx.Done():
			return o.release(out, res, start, preempted(ctx))
		case <-deadline:
			return o.release(out, res, start, fmt.Errorf("%w: yaw error %.1f after %d ticks", flight.ErrNotConverged, res.Final, res.Ticks))
		case <-ticker.C:
		}

		if current, err = r.sensors.Yaw(); err != nil {
			return o.release(out, res, start, fmt.Errorf("%w: reading yaw: %w", flight.ErrLinkFailure, err))
		}
		res.Final = r.Error(target, current)
		if math.Abs(res.Final) <= r.cfg.Tolerance {
			break
		}
		u := pid.Update(res.Final, o.now())

		// an abort may land while sampling; it must win over the computed output
		if ctx.Err() != nil {
			return o.release(out, res, start, preempted(ctx))
		}

		cmd := flight.RateCommand{Yaw: int(u)}
		if err := out.SendRateCommand(cmd); err != nil {
			return o.release(out, res, start, sendFailed(ctx, err))
		}
		res.Ticks++
		o.observe(res.Final, cmd)
		o.logger.Debug("yaw tick", "target", target, "yaw", current, "error", res.Final, "output", u, "integral", pid.Integral())
	}
	return o.release(out, res, start, nil)
}
