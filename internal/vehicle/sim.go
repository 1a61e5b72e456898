package vehicle

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/san-kum/tellosup/internal/flight"
)

var (
	ErrNotConnected = errors.New("vehicle: not connected")
	ErrNotFlying    = errors.New("vehicle: not flying")
)

// StickLimit is the firmware's saturation on every rate channel.
const StickLimit = 100

type Config struct {
	Battery       int
	Yaw           float64
	SpeedGain     float64
	YawGain       float64
	Lag           float64
	TakeoffHeight float64
	// Step is the integration step and wall-clock tick.
	Step time.Duration
	// DrainEvery is the airborne time per percent of battery.
	DrainEvery time.Duration
	// Manual disables the wall-clock goroutine; time only moves through
	// Advance.
	Manual bool
}

func DefaultConfig() Config {
	return Config{
		Battery:       100,
		SpeedGain:     1,
		YawGain:       1,
		Lag:           0.3,
		TakeoffHeight: 80,
		Step:          10 * time.Millisecond,
		DrainEvery:    30 * time.Second,
	}
}

// Faults makes link calls fail on demand.
type Faults struct {
	Connect       error
	Takeoff       error
	Land          error
	EmergencyStop error
	Sensor        error
	// Arity, when non-zero, resizes every snapshot.
	Arity int
	// Frozen drops rate commands without moving the body.
	Frozen bool
}

// Sim is an in-process vehicle that satisfies [flight.Link].
type Sim struct {
	cfg   Config
	model *Quad
	integ *RK4

	mu        sync.Mutex
	x         State
	u         Control
	t         float64
	airborne  float64
	battery   float64
	flying    bool
	connected bool
	faults    Faults
	sent      int
	stops     int

	stop chan struct{}
	done chan struct{}
}

var _ flight.Link = (*Sim)(nil)

func NewSim(cfg Config) *Sim {
	def := DefaultConfig()
	if cfg.Step <= 0 {
		cfg.Step = def.Step
	}
	if cfg.TakeoffHeight <= 0 {
		cfg.TakeoffHeight = def.TakeoffHeight
	}
	if cfg.DrainEvery <= 0 {
		cfg.DrainEvery = def.DrainEvery
	}

	q := NewQuad()
	if cfg.SpeedGain > 0 {
		q.SpeedGain = cfg.SpeedGain
	}
	if cfg.YawGain > 0 {
		q.YawGain = cfg.YawGain
	}
	if cfg.Lag > 0 {
		q.Lag = cfg.Lag
	}

	x := make(State, stateDim)
	x[iYaw] = cfg.Yaw
	return &Sim{
		cfg:     cfg,
		model:   q,
		integ:   NewRK4(),
		x:       x,
		u:       make(Control, 4),
		battery: float64(cfg.Battery),
	}
}

func (s *Sim) SetFaults(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
}

func (s *Sim) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults.Connect != nil {
		return s.faults.Connect
	}
	s.connected = true
	if !s.cfg.Manual && s.stop == nil {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.run(s.stop, s.done)
	}
	return nil
}

func (s *Sim) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.Step)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Advance(s.cfg.Step)
		}
	}
}

// Advance integrates the body over d.
func (s *Sim) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dt := s.cfg.Step.Seconds()
	for remaining := d.Seconds(); remaining > 1e-9; remaining -= dt {
		h := math.Min(dt, remaining)
		if s.flying {
			s.x = s.integ.Step(s.model, s.x, s.u, s.t, h)
			if s.x[iZ] < 0 {
				s.x[iZ], s.x[iVZ] = 0, 0
			}
			s.airborne += h
			s.battery = math.Max(0, s.battery-h/s.cfg.DrainEvery.Seconds())
		}
		s.t += h
	}
}

func (s *Sim) Takeoff(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if s.faults.Takeoff != nil {
		return s.faults.Takeoff
	}
	s.flying = true
	s.x[iZ] = s.cfg.TakeoffHeight
	return nil
}

func (s *Sim) Land(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if s.faults.Land != nil {
		return s.faults.Land
	}
	if !s.flying {
		return ErrNotFlying
	}
	s.cutMotors()
	return nil
}

func (s *Sim) EmergencyStop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	if !s.connected {
		return ErrNotConnected
	}
	if s.faults.EmergencyStop != nil {
		return s.faults.EmergencyStop
	}
	s.cutMotors()
	return nil
}

func (s *Sim) cutMotors() {
	s.flying = false
	s.x[iZ] = 0
	for _, i := range []int{iVX, iVY, iVZ, iYawRate} {
		s.x[i] = 0
	}
	clear(s.u)
}

func (s *Sim) SendRateCommand(cmd flight.RateCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	s.sent++
	if s.faults.Frozen || !s.flying {
		return nil
	}
	c := cmd.Clamp(StickLimit)
	s.u[0], s.u[1], s.u[2], s.u[3] = float64(c.Roll), float64(c.Pitch), float64(c.Throttle), float64(c.Yaw)
	return nil
}

// percent rounds the charge up so a fresh pack reads 100.
func percent(b float64) int {
	return int(math.Ceil(b - 1e-6))
}

// heading wraps the integrated yaw onto the firmware range.
func heading(yaw float64) float64 {
	h := math.Mod(yaw+180, 360)
	if h < 0 {
		h += 360
	}
	return h - 180
}

func (s *Sim) Yaw() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults.Sensor != nil {
		return 0, s.faults.Sensor
	}
	return math.Round(heading(s.x[iYaw])), nil
}

func (s *Sim) Height() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults.Sensor != nil {
		return 0, s.faults.Sensor
	}
	return math.Round(s.x[iZ]), nil
}

func (s *Sim) Battery() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults.Sensor != nil {
		return 0, s.faults.Sensor
	}
	return percent(s.battery), nil
}

// Snapshot reports the state in the firmware's field order.
func (s *Sim) Snapshot() (flight.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults.Sensor != nil {
		return nil, s.faults.Sensor
	}

	h := math.Round(s.x[iZ])
	snap := flight.Snapshot{
		-1, -100, -100, -100, 0, // no mission pad
		0, 0, math.Round(heading(s.x[iYaw])),
		math.Round(s.x[iVX] / 10), math.Round(s.x[iVY] / 10), math.Round(s.x[iVZ] / 10),
		60, 63,
		h + 10, h,
		float64(percent(s.battery)),
		h / 100,
		math.Floor(s.airborne),
		0, 0, -1000,
	}
	if n := s.faults.Arity; n > 0 {
		resized := make(flight.Snapshot, n)
		copy(resized, snap)
		snap = resized
	}
	return snap, nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.connected = false
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

// Flying reports whether the motors are running.
func (s *Sim) Flying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flying
}

// Sent is the number of rate commands received.
func (s *Sim) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// EmergencyStops is the number of emergency stop calls received.
func (s *Sim) EmergencyStops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// State returns a copy of the body state.
func (s *Sim) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(State(nil), s.x...)
}
