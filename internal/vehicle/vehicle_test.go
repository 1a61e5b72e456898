package vehicle

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/san-kum/tellosup/internal/flight"
)

type harmonic struct{}

func (harmonic) Derive(x State, u Control, t float64) State { return State{x[1], -x[0]} }
func (harmonic) StateDim() int                              { return 2 }
func (harmonic) ControlDim() int                            { return 0 }

func TestRK4Accuracy(t *testing.T) {
	integ := NewRK4()
	x := State{1.0, 0.0}
	dt := 0.01
	steps := 100

	for i := 0; i < steps; i++ {
		x = integ.Step(harmonic{}, x, nil, float64(i)*dt, dt)
	}

	if math.Abs(x[0]-math.Cos(1)) > 1e-4 {
		t.Errorf("position error too large: got %.6f", x[0])
	}
	if math.Abs(x[1]+math.Sin(1)) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f", x[1])
	}
}

func TestQuadSettlesToCommandedRate(t *testing.T) {
	q := NewQuad()
	integ := NewRK4()
	x := make(State, stateDim)
	u := Control{0, 0, 50, 30}

	for i := 0; i < 300; i++ {
		x = integ.Step(q, x, u, float64(i)*0.01, 0.01)
	}

	if math.Abs(x[iVZ]-50) > 0.1 {
		t.Errorf("expected climb rate near 50, got %f", x[iVZ])
	}
	if math.Abs(x[iYawRate]-30) > 0.1 {
		t.Errorf("expected yaw rate near 30, got %f", x[iYawRate])
	}
}

func TestQuadParams(t *testing.T) {
	q := NewQuad()
	if err := q.SetParam("lag", 0.5); err != nil || q.GetParams()["lag"] != 0.5 {
		t.Errorf("lag not set: %v", err)
	}
	if err := q.SetParam("mass", 1); err == nil {
		t.Error("expected error for unknown param")
	}
}

func manualSim() *Sim {
	cfg := DefaultConfig()
	cfg.Manual = true
	cfg.Yaw = 170
	return NewSim(cfg)
}

func TestSimFlight(t *testing.T) {
	ctx := context.Background()
	s := manualSim()

	if err := s.Takeoff(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := s.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Takeoff(ctx); err != nil {
		t.Fatal(err)
	}
	if h, _ := s.Height(); h != 80 {
		t.Errorf("expected takeoff height 80, got %v", h)
	}

	s.SendRateCommand(flight.RateCommand{Yaw: 500, Throttle: 20})
	s.Advance(2 * time.Second)

	yaw, _ := s.Yaw()
	if yaw > 0 || yaw < -180 {
		t.Errorf("heading should wrap past 180, got %v", yaw)
	}
	if h, _ := s.Height(); h <= 80 {
		t.Errorf("expected climb, got %v", h)
	}
	if st := s.State(); st[iYawRate] > StickLimit+1e-6 {
		t.Errorf("yaw rate %f exceeds stick limit", st[iYawRate])
	}

	if err := s.Land(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Flying() {
		t.Error("expected landed")
	}
	if err := s.Land(ctx); !errors.Is(err, ErrNotFlying) {
		t.Errorf("expected ErrNotFlying, got %v", err)
	}
}

func TestSimBatteryDrain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Manual = true
	cfg.Battery = 12
	cfg.DrainEvery = time.Second
	s := NewSim(cfg)
	s.Connect(context.Background())
	s.Takeoff(context.Background())

	s.Advance(3 * time.Second)

	if bat, _ := s.Battery(); bat != 9 {
		t.Errorf("expected 9%% after 3 s, got %d", bat)
	}
}

func TestSimSnapshot(t *testing.T) {
	s := manualSim()
	s.Connect(context.Background())

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Valid(flight.SnapshotArity) {
		t.Fatalf("expected %d fields, got %d", flight.SnapshotArity, len(snap))
	}
	if yaw, _ := snap.Field("yaw"); yaw != 170 {
		t.Errorf("expected yaw 170, got %v", yaw)
	}
	if bat, _ := snap.Field("bat"); bat != 100 {
		t.Errorf("expected battery 100, got %v", bat)
	}

	s.SetFaults(Faults{Arity: 16})
	snap, _ = s.Snapshot()
	if len(snap) != 16 {
		t.Errorf("expected resized snapshot, got %d", len(snap))
	}
}

func TestSimFaults(t *testing.T) {
	ctx := context.Background()
	s := manualSim()
	boom := errors.New("boom")

	s.SetFaults(Faults{Connect: boom})
	if err := s.Connect(ctx); !errors.Is(err, boom) {
		t.Errorf("expected connect fault, got %v", err)
	}

	s.SetFaults(Faults{EmergencyStop: boom, Frozen: true})
	s.Connect(ctx)
	s.Takeoff(ctx)
	s.SendRateCommand(flight.RateCommand{Yaw: 50})
	s.Advance(time.Second)

	if yaw, _ := s.Yaw(); yaw != 170 {
		t.Errorf("frozen vehicle should not turn, got %v", yaw)
	}
	if err := s.EmergencyStop(ctx); !errors.Is(err, boom) {
		t.Errorf("expected stop fault, got %v", err)
	}
	if s.EmergencyStops() != 1 || s.Sent() != 1 {
		t.Errorf("stops=%d sent=%d", s.EmergencyStops(), s.Sent())
	}
}

func TestSimClock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Step = time.Millisecond
	s := NewSim(cfg)
	ctx := context.Background()
	s.Connect(ctx)
	defer s.Close()
	s.Takeoff(ctx)
	s.SendRateCommand(flight.RateCommand{Throttle: 100})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h, _ := s.Height(); h > 85 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("wall clock did not advance the body")
}
