package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/san-kum/tellosup/internal/arbiter"
	"github.com/san-kum/tellosup/internal/config"
	"github.com/san-kum/tellosup/internal/flight"
	"github.com/san-kum/tellosup/internal/logging"
	"github.com/san-kum/tellosup/internal/telemetry"
	"github.com/san-kum/tellosup/internal/vehicle"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	config.ApplyPreset(cfg, "sim")
	cfg.Yaw.Kp, cfg.Yaw.Ki, cfg.Yaw.Kd = 2, 0, 0
	cfg.Yaw.Period = 20 * time.Millisecond
	cfg.Altitude.Period = 20 * time.Millisecond
	cfg.Telemetry.Period = 10 * time.Millisecond
	cfg.Arbiter.YawStep = 30
	cfg.Arbiter.Keepalive = 50 * time.Millisecond
	return cfg
}

func newSim(battery int) *vehicle.Sim {
	sc := vehicle.DefaultConfig()
	sc.Battery = battery
	sc.Step = 2 * time.Millisecond
	return vehicle.NewSim(sc)
}

func run(t *testing.T, s *Supervisor, sources ...arbiter.Source) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	err := s.Run(ctx, sources...)
	if ctx.Err() != nil {
		t.Fatal("session did not end on its own")
	}
	return err
}

func TestFlightSession(t *testing.T) {
	sim := newSim(100)
	buf := &telemetry.Buffer{}
	s := New(testConfig(), sim, buf, logging.Discard())

	err := run(t, s, Script{
		{Kind: arbiter.Takeoff},
		{Kind: arbiter.YawRight},
		{Kind: arbiter.AltitudeUp},
		{Kind: arbiter.Quit},
	})
	if err != nil {
		t.Fatal(err)
	}

	// quitting in the air lands on the way out
	if s.Mode() != flight.Landed {
		t.Errorf("expected landed, got %v", s.Mode())
	}
	if sim.Flying() {
		t.Error("vehicle still flying")
	}
	if st := s.Stats(); st.Intents != 3 || st.Dropped != 0 {
		t.Errorf("unexpected stats %+v", st)
	}

	records := buf.Records()
	if len(records) == 0 {
		t.Fatal("expected telemetry records")
	}
	seen := map[string]bool{}
	for _, r := range records {
		seen[r.Label] = true
		if !r.Snapshot.Valid(flight.SnapshotArity) {
			t.Fatalf("malformed record kept: %d fields", len(r.Snapshot))
		}
	}
	if !seen["YAW RIGHT"] || !seen["UP"] {
		t.Errorf("expected labels recorded, saw %v", seen)
	}
}

func TestLowBatteryEndsSession(t *testing.T) {
	sim := newSim(5)
	s := New(testConfig(), sim, nil, logging.Discard())

	err := run(t, s, Script{{Kind: arbiter.Takeoff}, {Kind: arbiter.YawLeft}})
	if !errors.Is(err, flight.ErrLowBattery) {
		t.Errorf("expected ErrLowBattery, got %v", err)
	}
	if sim.Flying() {
		t.Error("vehicle must not take off")
	}
}

func TestEmergencyLatches(t *testing.T) {
	sim := newSim(100)
	s := New(testConfig(), sim, nil, logging.Discard())

	err := run(t, s, Script{
		{Kind: arbiter.Takeoff},
		{Kind: arbiter.Emergency},
		{Kind: arbiter.Takeoff},
		{Kind: arbiter.Quit},
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Mode() != flight.Emergency || s.Label() != "takeoff" {
		t.Errorf("unexpected final state %v / %q", s.Mode(), s.Label())
	}
	if sim.Flying() {
		t.Error("motors still running")
	}
	if sim.EmergencyStops() != 1 {
		t.Errorf("expected one emergency stop, got %d", sim.EmergencyStops())
	}
}

func TestLandsOnCancel(t *testing.T) {
	sim := newSim(100)
	s := New(testConfig(), sim, nil, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, Script{{Kind: arbiter.Takeoff}}) }()

	deadline := time.Now().Add(5 * time.Second)
	for s.Mode() != flight.Airborne {
		if time.Now().After(deadline) {
			t.Fatal("never airborne")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if s.Mode() != flight.Landed || sim.Flying() {
		t.Errorf("expected landing on exit, mode %v", s.Mode())
	}
}

func TestConnectFailure(t *testing.T) {
	sim := newSim(100)
	sim.SetFaults(vehicle.Faults{Connect: errors.New("no wifi")})
	s := New(testConfig(), sim, nil, logging.Discard())

	if err := s.Run(context.Background()); !errors.Is(err, flight.ErrLinkFailure) {
		t.Errorf("expected ErrLinkFailure, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	sim := newSim(64)
	sim.Connect(context.Background())
	defer sim.Close()
	s := New(testConfig(), sim, nil, logging.Discard())

	st := s.Status()
	if st.Mode != flight.Grounded || st.Label != arbiter.InitialLabel || st.Battery != 64 {
		t.Errorf("unexpected status %+v", st)
	}
}
