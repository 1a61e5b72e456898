package sequencer_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/tellosup/internal/control"
	"github.com/san-kum/tellosup/internal/flight"
	"github.com/san-kum/tellosup/internal/safety"
	"github.com/san-kum/tellosup/internal/sequencer"
)

// toyVehicle integrates each rate command once: yaw moves by half the yaw
// rate and height by a fifth of the throttle.
type toyVehicle struct {
	mu       sync.Mutex
	yaw      float64
	height   float64
	battery  int
	frozen   bool
	yawErr   error
	cmds     []flight.RateCommand
	takeoffs int
	lands    int
	stops    int
}

func (v *toyVehicle) Connect(context.Context) error { return nil }

func (v *toyVehicle) Takeoff(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.takeoffs++
	v.height = 80
	return nil
}

func (v *toyVehicle) Land(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lands++
	v.height = 0
	return nil
}

func (v *toyVehicle) EmergencyStop(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stops++
	return nil
}

func (v *toyVehicle) Yaw() (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.yaw, v.yawErr
}

func (v *toyVehicle) setYawErr(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.yawErr = err
}

func (v *toyVehicle) Height() (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.height, nil
}

func (v *toyVehicle) Battery() (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.battery, nil
}

func (v *toyVehicle) SendRateCommand(cmd flight.RateCommand) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cmds = append(v.cmds, cmd)
	if !v.frozen {
		v.yaw += 0.5 * float64(cmd.Yaw)
		v.height += 0.2 * float64(cmd.Throttle)
	}
	return nil
}

func (v *toyVehicle) commands() []flight.RateCommand {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]flight.RateCommand(nil), v.cmds...)
}

func (v *toyVehicle) lastCommand() flight.RateCommand {
	cmds := v.commands()
	Expect(cmds).NotTo(BeEmpty())
	return cmds[len(cmds)-1]
}

func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Unix(0, 0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(100 * time.Millisecond)
		return t
	}
}

var _ = Describe("Sequencer", func() {
	var (
		ctx     context.Context
		vehicle *toyVehicle
		mode    *flight.ModeCell
		gate    *safety.Gate
		seq     *sequencer.Sequencer
		cfg     sequencer.Config
	)

	build := func() {
		yawCfg := control.DefaultYawConfig()
		yawCfg.Period = time.Millisecond
		altCfg := control.DefaultAltitudeConfig()
		altCfg.Period = time.Millisecond

		mode = flight.NewModeCell(flight.Grounded)
		gate = safety.NewGate(vehicle, mode, safety.DefaultMinBattery, nil)
		seq = sequencer.New(cfg, vehicle, gate, mode,
			control.NewYawRegulator(vehicle, yawCfg, control.WithClock(steppingClock())),
			control.NewAltitudeRegulator(vehicle, altCfg),
			nil)
	}

	BeforeEach(func() {
		ctx = context.Background()
		vehicle = &toyVehicle{yaw: 30, battery: 80}
		cfg = sequencer.Config{Offset: 90}
		build()
	})

	It("starts grounded", func() {
		Expect(seq.Mode()).To(Equal(flight.Grounded))
	})

	Context("preflight", func() {
		It("refuses takeoff below the battery minimum", func() {
			vehicle.battery = 9
			Expect(seq.Takeoff(ctx)).To(MatchError(flight.ErrLowBattery))
			Expect(vehicle.takeoffs).To(BeZero())
			Expect(seq.Mode()).To(Equal(flight.Grounded))
		})

		It("accepts exactly the minimum", func() {
			vehicle.battery = 10
			Expect(seq.Takeoff(ctx)).To(Succeed())
			Expect(seq.Mode()).To(Equal(flight.Airborne))
		})
	})

	Context("while grounded", func() {
		It("rejects maneuvers", func() {
			err := seq.Rotate(ctx, 60)
			var terr *flight.TransitionError
			Expect(errors.As(err, &terr)).To(BeTrue())
			Expect(terr.From).To(Equal(flight.Grounded))
			Expect(seq.ChangeAltitude(ctx, 20)).To(MatchError(flight.ErrInvalidTransition))
			Expect(seq.Land(ctx)).To(MatchError(flight.ErrInvalidTransition))
			Expect(vehicle.commands()).To(BeEmpty())
		})

		It("does not hover", func() {
			Expect(seq.Hover()).To(Succeed())
			Expect(vehicle.commands()).To(BeEmpty())
		})
	})

	Context("when airborne", func() {
		BeforeEach(func() {
			Expect(seq.Takeoff(ctx)).To(Succeed())
		})

		It("captures the initial heading", func() {
			Expect(seq.InitialYaw()).To(Equal(30.0))
			Expect(seq.Heading()).To(Equal(30.0))
		})

		It("rotates to the new heading and releases with a zero command", func() {
			Expect(seq.Rotate(ctx, 60)).To(Succeed())
			Expect(seq.Mode()).To(Equal(flight.Airborne))
			Expect(vehicle.yaw).To(BeNumerically("~", 90, 1))
			Expect(vehicle.lastCommand()).To(Equal(flight.Hover))
		})

		It("accumulates yaw steps from the setpoint", func() {
			Expect(seq.Rotate(ctx, 60)).To(Succeed())
			Expect(seq.Rotate(ctx, -60)).To(Succeed())
			Expect(seq.Heading()).To(Equal(30.0))
		})

		It("climbs by the requested step", func() {
			Expect(seq.ChangeAltitude(ctx, 20)).To(Succeed())
			Expect(vehicle.height).To(BeNumerically(">=", 100))
			Expect(vehicle.lastCommand()).To(Equal(flight.Hover))
			for _, c := range vehicle.commands()[:len(vehicle.commands())-1] {
				Expect(c.Throttle).To(BeNumerically(">", 0))
			}
		})

		It("hovers with a zero command", func() {
			Expect(seq.Hover()).To(Succeed())
			Expect(vehicle.commands()).To(Equal([]flight.RateCommand{flight.Hover}))
		})

		It("lands and may take off again", func() {
			Expect(seq.Land(ctx)).To(Succeed())
			Expect(seq.Mode()).To(Equal(flight.Landed))
			Expect(seq.Rotate(ctx, 10)).To(MatchError(flight.ErrInvalidTransition))
			Expect(seq.Takeoff(ctx)).To(Succeed())
			Expect(vehicle.takeoffs).To(Equal(2))
		})

		It("rejects a second takeoff", func() {
			Expect(seq.Takeoff(ctx)).To(MatchError(flight.ErrInvalidTransition))
		})
	})

	Context("scripted sequence", func() {
		It("rotates out and back then lands", func() {
			Expect(seq.RunSequence(ctx)).To(Succeed())
			Expect(seq.Mode()).To(Equal(flight.Landed))
			Expect(vehicle.yaw).To(BeNumerically("~", 30, 1))
			Expect(vehicle.lands).To(Equal(1))

			var positive, negative bool
			for _, c := range vehicle.commands() {
				positive = positive || c.Yaw > 0
				negative = negative || c.Yaw < 0
			}
			Expect(positive && negative).To(BeTrue())
		})

		It("holds for a land intent when configured", func() {
			cfg.HoldForLand = true
			build()
			Expect(seq.RunSequence(ctx)).To(Succeed())
			Expect(seq.Mode()).To(Equal(flight.Airborne))
			Expect(vehicle.lands).To(BeZero())
		})

		It("stops dwelling when interrupted", func() {
			cfg.Dwell = time.Hour
			build()
			done := make(chan error, 1)
			go func() { done <- seq.RunSequence(ctx) }()

			// airborne again after turning back means the dwell has begun
			Eventually(func() bool {
				var back bool
				for _, c := range vehicle.commands() {
					back = back || c.Yaw < 0
				}
				return back && seq.Mode() == flight.Airborne
			}).WithTimeout(5 * time.Second).Should(BeTrue())
			gate.Interrupt()

			Eventually(done).WithTimeout(5 * time.Second).Should(Receive(MatchError(flight.ErrPreempted)))
			Expect(seq.Mode()).To(Equal(flight.Airborne))
			Expect(vehicle.lands).To(BeZero())
		})

		It("skips the rotations when interrupted during the takeoff settle", func() {
			cfg.Settle = 200 * time.Millisecond
			build()
			done := make(chan error, 1)
			go func() { done <- seq.RunSequence(ctx) }()

			Eventually(seq.Mode).Should(Equal(flight.TakingOff))
			gate.Interrupt()

			Eventually(done).WithTimeout(time.Second).Should(Receive(MatchError(flight.ErrPreempted)))
			Expect(seq.Mode()).To(Equal(flight.Airborne))
			for _, c := range vehicle.commands() {
				Expect(c.Yaw).To(BeZero())
			}

			Expect(seq.Land(ctx)).To(Succeed())
			Expect(gate.Interrupted()).To(BeFalse())
		})

		It("cancels a rotation started between the interrupt and the land", func() {
			Expect(seq.Takeoff(ctx)).To(Succeed())
			gate.Interrupt()

			Expect(seq.Rotate(ctx, 60)).To(MatchError(flight.ErrPreempted))
			for _, c := range vehicle.commands() {
				Expect(c.Yaw).To(BeZero())
			}

			Expect(seq.Land(ctx)).To(Succeed())
			Expect(seq.Takeoff(ctx)).To(Succeed())
			Expect(seq.Rotate(ctx, 60)).To(Succeed())
		})
	})

	Context("heading", func() {
		It("reports a missing initial heading but stays airborne", func() {
			cfg.Settle = 20 * time.Millisecond
			build()
			vehicle.setYawErr(errors.New("no state"))

			Expect(seq.Takeoff(ctx)).To(MatchError(flight.ErrLinkFailure))
			Expect(seq.Mode()).To(Equal(flight.Airborne))
			Expect(vehicle.commands()).To(BeEmpty())

			vehicle.setYawErr(nil)
			Expect(seq.Rotate(ctx, 60)).To(Succeed())
			Expect(seq.InitialYaw()).To(Equal(30.0))
			Expect(seq.Heading()).To(Equal(90.0))
		})

		It("keeps the measured heading after a pre-empted rotation", func() {
			Expect(seq.Takeoff(ctx)).To(Succeed())
			vehicle.mu.Lock()
			vehicle.frozen = true
			vehicle.mu.Unlock()

			done := make(chan error, 1)
			go func() { done <- seq.Rotate(ctx, 120) }()
			Eventually(func() int { return len(vehicle.commands()) }).Should(BeNumerically(">", 3))
			gate.Interrupt()

			Eventually(done).WithTimeout(time.Second).Should(Receive(MatchError(flight.ErrPreempted)))
			Expect(seq.Heading()).To(Equal(30.0))
			Expect(vehicle.lastCommand()).To(Equal(flight.Hover))
		})
	})

	Context("emergency", func() {
		It("pre-empts a rotation and latches", func() {
			Expect(seq.Takeoff(ctx)).To(Succeed())
			vehicle.mu.Lock()
			vehicle.frozen = true
			vehicle.mu.Unlock()

			done := make(chan error, 1)
			go func() { done <- seq.Rotate(ctx, 120) }()

			Eventually(func() int { return len(vehicle.commands()) }).Should(BeNumerically(">", 3))
			Expect(gate.EmergencyAbort(ctx)).To(Succeed())

			var err error
			Eventually(done).WithTimeout(time.Second).Should(Receive(&err))
			Expect(err).To(MatchError(flight.ErrEmergency))

			var merr *sequencer.ManeuverError
			Expect(errors.As(err, &merr)).To(BeTrue())
			Expect(merr.Op).To(Equal("rotate"))

			Expect(vehicle.lastCommand()).To(Equal(flight.Hover))
			Expect(seq.Mode()).To(Equal(flight.Emergency))
			Expect(vehicle.stops).To(Equal(1))

			sent := len(vehicle.commands())
			Expect(seq.Rotate(ctx, 10)).To(MatchError(flight.ErrEmergency))
			Expect(seq.Takeoff(ctx)).To(MatchError(flight.ErrEmergency))
			Expect(seq.Hover()).To(Succeed())
			Expect(vehicle.commands()).To(HaveLen(sent))
		})
	})
})
