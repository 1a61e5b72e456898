package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/san-kum/tellosup/internal/flight"
)

const (
	DefaultCommandAddr = "192.168.10.1:8889"
	DefaultStateAddr   = ":8890"
	DefaultTimeout     = 7 * time.Second

	// StickLimit is the firmware's bound on every rc channel.
	StickLimit = 100
)

var (
	ErrNotConnected = errors.New("link: not connected")
	ErrRejected     = errors.New("link: command rejected")
	ErrNoState      = errors.New("link: no state received yet")
	ErrBadState     = errors.New("link: malformed state datagram")

	// ErrAbandoned is returned by a request whose reply wait was cut short
	// by an emergency stop.
	ErrAbandoned = errors.New("link: request abandoned for emergency stop")
)

// Tello speaks the SDK text protocol: request/response commands on one UDP
// socket and a state broadcast on another.
type Tello struct {
	commandAddr string
	stateAddr   string
	timeout     time.Duration
	logger      *slog.Logger

	// cmdMu keeps one request waiting for its reply at a time.
	cmdMu sync.Mutex

	mu      sync.RWMutex
	conn    *net.UDPConn
	state   *net.UDPConn
	done    chan struct{}
	replies chan string
	// abandon is closed by an emergency stop and then replaced.
	abandon chan struct{}
	readers sync.WaitGroup
	keys    []string
	snap    flight.Snapshot
	bad     int
}

var _ flight.Link = (*Tello)(nil)

func NewTello(commandAddr, stateAddr string, timeout time.Duration, logger *slog.Logger) *Tello {
	if commandAddr == "" {
		commandAddr = DefaultCommandAddr
	}
	if stateAddr == "" {
		stateAddr = DefaultStateAddr
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tello{
		commandAddr: commandAddr,
		stateAddr:   stateAddr,
		timeout:     timeout,
		logger:      logger,
		abandon:     make(chan struct{}),
	}
}

// Connect opens both sockets and enters SDK mode. Calling it again tears the
// old sockets down first.
func (t *Tello) Connect(ctx context.Context) error {
	t.teardown()

	raddr, err := net.ResolveUDPAddr("udp", t.commandAddr)
	if err != nil {
		return fmt.Errorf("link: resolve %s: %w", t.commandAddr, err)
	}
	laddr, err := net.ResolveUDPAddr("udp", t.stateAddr)
	if err != nil {
		return fmt.Errorf("link: resolve %s: %w", t.stateAddr, err)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("link: dial: %w", err)
	}
	state, err := net.ListenUDP("udp", laddr)
	if err != nil {
		conn.Close()
		return fmt.Errorf("link: listen state: %w", err)
	}

	done := make(chan struct{})
	replies := make(chan string, 4)
	t.mu.Lock()
	t.conn, t.state, t.done, t.replies = conn, state, done, replies
	t.keys, t.snap = nil, nil
	t.mu.Unlock()

	go t.listen(state, done)
	t.readers.Add(1)
	go t.readReplies(conn, replies)

	if err := t.request(ctx, "command"); err != nil {
		return err
	}
	t.logger.Info("tello connected", "addr", t.commandAddr, "state", state.LocalAddr())
	return nil
}

func (t *Tello) listen(conn *net.UDPConn, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				t.logger.Warn("state listener stopped", "err", err)
			}
			return
		}

		keys, snap, err := ParseState(buf[:n])
		if err != nil {
			t.mu.Lock()
			t.bad++
			t.mu.Unlock()
			t.logger.Debug("dropping state datagram", "err", err)
			continue
		}

		t.mu.Lock()
		t.keys, t.snap = keys, snap
		t.mu.Unlock()
	}
}

// readReplies moves command socket replies onto replies until conn closes.
func (t *Tello) readReplies(conn *net.UDPConn, replies chan<- string) {
	defer t.readers.Done()
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				t.logger.Warn("reply reader stopped", "err", err)
			}
			return
		}
		reply := strings.TrimSpace(string(buf[:n]))
		select {
		case replies <- reply:
		default:
			t.logger.Debug("dropping unclaimed reply", "reply", reply)
		}
	}
}

func (t *Tello) conns() (*net.UDPConn, chan string, chan struct{}) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conn, t.replies, t.abandon
}

func (t *Tello) request(ctx context.Context, cmd string) error {
	// captured before queueing so an emergency issued meanwhile is seen
	_, _, abandon := t.conns()

	t.cmdMu.Lock()
	defer t.cmdMu.Unlock()

	conn, replies, _ := t.conns()
	if conn == nil {
		return ErrNotConnected
	}
	if abandoned(abandon) {
		return fmt.Errorf("%w: %s", ErrAbandoned, cmd)
	}
	drain(replies)

	if _, err := conn.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("link: %s: %w", cmd, err)
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("link: %s: %w", cmd, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("link: %s: %w", cmd, os.ErrDeadlineExceeded)
	case <-abandon:
		return fmt.Errorf("%w: %s", ErrAbandoned, cmd)
	case reply := <-replies:
		if abandoned(abandon) {
			// the reply may belong to the emergency stop
			select {
			case replies <- reply:
			default:
			}
			return fmt.Errorf("%w: %s", ErrAbandoned, cmd)
		}
		t.logger.Debug("tello reply", "cmd", cmd, "reply", reply)
		if reply != "ok" {
			return fmt.Errorf("%w: %s: %q", ErrRejected, cmd, reply)
		}
		return nil
	}
}

func abandoned(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func drain(replies chan string) {
	for {
		select {
		case <-replies:
		default:
			return
		}
	}
}

func (t *Tello) Takeoff(ctx context.Context) error       { return t.request(ctx, "takeoff") }
func (t *Tello) Land(ctx context.Context) error          { return t.request(ctx, "land") }

// EmergencyStop writes the emergency command at once, without queueing
// behind a request still waiting for its reply. That request is abandoned.
// The call then waits up to the link timeout for an "ok", skipping any
// other reply.
func (t *Tello) EmergencyStop(ctx context.Context) error {
	t.mu.Lock()
	conn, replies := t.conn, t.replies
	if conn != nil {
		close(t.abandon)
		t.abandon = make(chan struct{})
	}
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if _, err := conn.Write([]byte("emergency")); err != nil {
		return fmt.Errorf("link: emergency: %w", err)
	}

	t.cmdMu.Lock()
	defer t.cmdMu.Unlock()

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()
	last := ""
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("link: emergency: %w", ctx.Err())
		case <-timer.C:
			if last != "" {
				return fmt.Errorf("%w: emergency: %q", ErrRejected, last)
			}
			return fmt.Errorf("link: emergency: %w", os.ErrDeadlineExceeded)
		case reply := <-replies:
			t.logger.Debug("tello reply", "cmd", "emergency", "reply", reply)
			if reply == "ok" {
				return nil
			}
			last = reply
		}
	}
}

// SendRateCommand writes an rc line. The firmware does not answer these.
func (t *Tello) SendRateCommand(cmd flight.RateCommand) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	if _, err := conn.Write([]byte(cmd.Clamp(StickLimit).String())); err != nil {
		return fmt.Errorf("link: rc: %w", err)
	}
	return nil
}

func (t *Tello) field(name string) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.snap == nil {
		return 0, ErrNoState
	}
	i := slices.Index(t.keys, name)
	if i < 0 {
		return 0, fmt.Errorf("%w: missing %s", ErrBadState, name)
	}
	return t.snap[i], nil
}

func (t *Tello) Yaw() (float64, error)    { return t.field("yaw") }
func (t *Tello) Height() (float64, error) { return t.field("h") }

func (t *Tello) Battery() (int, error) {
	v, err := t.field("bat")
	return int(v), err
}

// Snapshot returns the latest state in datagram order. Firmware without
// mission pad support sends fewer fields.
func (t *Tello) Snapshot() (flight.Snapshot, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.snap == nil {
		return nil, ErrNoState
	}
	return t.snap.Clone(), nil
}

// StateLocalAddr is the bound address of the state socket, nil before Connect.
func (t *Tello) StateLocalAddr() net.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state == nil {
		return nil
	}
	return t.state.LocalAddr()
}

// Malformed counts state datagrams that failed to parse.
func (t *Tello) Malformed() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bad
}

func (t *Tello) teardown() error {
	t.mu.Lock()
	conn, state, done := t.conn, t.state, t.done
	t.conn, t.state, t.done, t.replies = nil, nil, nil, nil
	t.mu.Unlock()

	var errs []error
	if conn != nil {
		errs = append(errs, conn.Close())
		t.readers.Wait()
	}
	if state != nil {
		errs = append(errs, state.Close())
		<-done
	}
	return errors.Join(errs...)
}

func (t *Tello) Close() error {
	return t.teardown()
}
