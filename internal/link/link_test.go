package link

import (
	"context"
	"errors"
	"net"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/san-kum/tellosup/internal/flight"
	"github.com/san-kum/tellosup/internal/logging"
)

const fullState = "mid:-1;x:-100;y:-100;z:-100;mpry:0,0,0;pitch:1;roll:-2;yaw:-87;" +
	"vgx:0;vgy:0;vgz:0;templ:60;temph:63;tof:95;h:80;bat:76;baro:12.34;time:5;" +
	"agx:-3.00;agy:1.00;agz:-999.00;\r\n"

func TestParseState(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		arity int
		err   bool
	}{
		{"sdk 2.0", fullState, flight.SnapshotArity, false},
		{"old firmware", "pitch:0;roll:0;yaw:10;vgx:0;vgy:0;vgz:0;templ:60;temph:63;tof:10;h:0;bat:90;baro:1.0;time:0;agx:0;agy:0;agz:-1000;", 16, false},
		{"empty", "  \r\n", 0, true},
		{"missing colon", "yaw;h:3;", 0, true},
		{"not a number", "yaw:abc;", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, snap, err := ParseState([]byte(tt.in))
			if tt.err {
				if !errors.Is(err, ErrBadState) {
					t.Errorf("expected ErrBadState, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(snap) != tt.arity || len(keys) != tt.arity {
				t.Errorf("expected %d fields, got %d", tt.arity, len(snap))
			}
		})
	}
}

func TestParseStateOrder(t *testing.T) {
	keys, snap, err := ParseState([]byte(fullState))
	if err != nil {
		t.Fatal(err)
	}
	for i, name := range flight.SnapshotFields {
		if keys[i] != name {
			t.Fatalf("field %d: expected %s, got %s", i, name, keys[i])
		}
	}
	if v, _ := snap.Field("yaw"); v != -87 {
		t.Errorf("expected yaw -87, got %v", v)
	}
	if v, _ := snap.Field("baro"); v != 12.34 {
		t.Errorf("expected baro 12.34, got %v", v)
	}
}

// fakeDrone answers commands on a loopback socket and records what it got.
type fakeDrone struct {
	conn  *net.UDPConn
	reply func(cmd string) string

	mu   sync.Mutex
	got  []string
	peer *net.UDPAddr
}

func newFakeDrone(t *testing.T, reply func(string) string) *fakeDrone {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	d := &fakeDrone{conn: conn, reply: reply}
	go d.serve()
	t.Cleanup(func() { conn.Close() })
	return d
}

func (d *fakeDrone) serve() {
	buf := make([]byte, 256)
	for {
		n, from, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		cmd := string(buf[:n])
		d.mu.Lock()
		d.got = append(d.got, cmd)
		d.peer = from
		d.mu.Unlock()

		if strings.HasPrefix(cmd, "rc ") {
			continue
		}
		if r := d.reply(cmd); r != "" {
			d.conn.WriteToUDP([]byte(r), from)
		}
	}
}

func (d *fakeDrone) received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.got...)
}

func (d *fakeDrone) addr() string { return d.conn.LocalAddr().String() }

func okDrone(string) string { return "ok" }

func connectTello(t *testing.T, d *fakeDrone, timeout time.Duration) *Tello {
	t.Helper()
	tl := NewTello(d.addr(), "127.0.0.1:0", timeout, logging.Discard())
	if err := tl.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tl.Close() })
	return tl
}

func sendState(t *testing.T, tl *Tello, datagram string) {
	t.Helper()
	conn, err := net.Dial("udp", tl.StateLocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(datagram)); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTelloCommands(t *testing.T) {
	d := newFakeDrone(t, okDrone)
	tl := connectTello(t, d, time.Second)
	ctx := context.Background()

	if err := tl.Takeoff(ctx); err != nil {
		t.Fatal(err)
	}
	if err := tl.SendRateCommand(flight.RateCommand{Roll: 5, Throttle: -250, Yaw: 120}); err != nil {
		t.Fatal(err)
	}
	if err := tl.Land(ctx); err != nil {
		t.Fatal(err)
	}

	want := []string{"command", "takeoff", "rc 5 0 -100 100", "land"}
	waitFor(t, func() bool { return len(d.received()) == len(want) })
	for i, cmd := range d.received() {
		if cmd != want[i] {
			t.Errorf("command %d: expected %q, got %q", i, want[i], cmd)
		}
	}
}

func TestTelloRejected(t *testing.T) {
	d := newFakeDrone(t, func(cmd string) string {
		if cmd == "takeoff" {
			return "error Motor stop"
		}
		return "ok"
	})
	tl := connectTello(t, d, time.Second)

	err := tl.Takeoff(context.Background())
	if !errors.Is(err, ErrRejected) {
		t.Errorf("expected ErrRejected, got %v", err)
	}
}

func TestTelloTimeout(t *testing.T) {
	d := newFakeDrone(t, func(cmd string) string {
		if cmd == "command" {
			return "ok"
		}
		return ""
	})
	tl := connectTello(t, d, 50*time.Millisecond)

	start := time.Now()
	if err := tl.EmergencyStop(context.Background()); err == nil {
		t.Fatal("expected timeout")
	}
	if time.Since(start) > time.Second {
		t.Error("timeout not honoured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tl.Land(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestTelloEmergencyDuringPendingRequest(t *testing.T) {
	d := newFakeDrone(t, func(cmd string) string {
		if cmd == "takeoff" {
			return ""
		}
		return "ok"
	})
	tl := connectTello(t, d, 3*time.Second)

	takeoff := make(chan error, 1)
	go func() { takeoff <- tl.Takeoff(context.Background()) }()
	waitFor(t, func() bool { return slices.Contains(d.received(), "takeoff") })

	start := time.Now()
	if err := tl.EmergencyStop(context.Background()); err != nil {
		t.Fatalf("emergency stop failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("emergency stop took %s behind the pending takeoff", elapsed)
	}
	if got := d.received(); got[len(got)-1] != "emergency" {
		t.Errorf("expected emergency last, got %v", got)
	}

	select {
	case err := <-takeoff:
		if !errors.Is(err, ErrAbandoned) {
			t.Errorf("expected ErrAbandoned, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending takeoff was not abandoned")
	}
}

func TestTelloState(t *testing.T) {
	d := newFakeDrone(t, okDrone)
	tl := connectTello(t, d, time.Second)

	if _, err := tl.Yaw(); !errors.Is(err, ErrNoState) {
		t.Errorf("expected ErrNoState, got %v", err)
	}
	if _, err := tl.Snapshot(); !errors.Is(err, ErrNoState) {
		t.Errorf("expected ErrNoState, got %v", err)
	}

	sendState(t, tl, "garbage")
	waitFor(t, func() bool { return tl.Malformed() == 1 })

	sendState(t, tl, fullState)
	waitFor(t, func() bool { _, err := tl.Snapshot(); return err == nil })

	if yaw, _ := tl.Yaw(); yaw != -87 {
		t.Errorf("expected yaw -87, got %v", yaw)
	}
	if h, _ := tl.Height(); h != 80 {
		t.Errorf("expected height 80, got %v", h)
	}
	if bat, _ := tl.Battery(); bat != 76 {
		t.Errorf("expected battery 76, got %v", bat)
	}
	snap, _ := tl.Snapshot()
	if len(snap) != flight.SnapshotArity {
		t.Errorf("expected %d fields, got %d", flight.SnapshotArity, len(snap))
	}
}

func TestTelloReconnect(t *testing.T) {
	d := newFakeDrone(t, okDrone)
	tl := connectTello(t, d, time.Second)

	if err := tl.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := tl.EmergencyStop(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := d.received()
	if len(got) != 3 || got[1] != "command" || got[2] != "emergency" {
		t.Errorf("unexpected command stream %v", got)
	}
}

func TestNotConnected(t *testing.T) {
	tl := NewTello("127.0.0.1:1", "127.0.0.1:0", time.Second, logging.Discard())
	if err := tl.Takeoff(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := tl.SendRateCommand(flight.Hover); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if tl.StateLocalAddr() != nil {
		t.Error("expected no state socket")
	}
}

func TestOpen(t *testing.T) {
	for _, kind := range Kinds() {
		l, err := Open(Options{Kind: kind}, nil)
		if err != nil || l == nil {
			t.Errorf("%s: %v", kind, err)
		}
	}
	if _, err := Open(Options{Kind: "bebop"}, nil); err == nil {
		t.Error("expected error for unknown link")
	}
}
