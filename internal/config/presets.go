package config

import (
	"sort"
	"time"
)

// Preset is a named adjustment applied on top of the defaults.
type Preset struct {
	Description string
	Apply       func(*Config)
}

var Presets = map[string]Preset{
	"sim": {
		Description: "simulated vehicle, fast telemetry",
		Apply: func(c *Config) {
			c.Link.Kind = "sim"
			c.Telemetry.Period = 50 * time.Millisecond
			c.Sequence.Settle = 0
		},
	},
	"indoor": {
		Description: "small steps and slow climbs for rooms",
		Apply: func(c *Config) {
			c.Altitude.Rate = 30
			c.Arbiter.AltitudeStep = 10
			c.Arbiter.YawStep = 30
			c.Yaw.OutputLimit = 60
		},
	},
	"gentle": {
		Description: "softer yaw gains",
		Apply: func(c *Config) {
			c.Yaw.Kp, c.Yaw.Ki, c.Yaw.Kd = 0.5, 0.05, 0.02
			c.Yaw.Tolerance = 2
		},
	},
	"aggressive": {
		Description: "stiff yaw gains and fast climbs",
		Apply: func(c *Config) {
			c.Yaw.Kp, c.Yaw.Ki, c.Yaw.Kd = 1.2, 0.15, 0.08
			c.Altitude.Rate = 80
		},
	},
	"voice": {
		Description: "online grammar, hold after the scripted turn until told to land",
		Apply: func(c *Config) {
			c.Voice.Grammar = "online"
			c.Sequence.HoldForLand = true
		},
	},
	"legacy": {
		Description: "raw yaw error and no timeouts",
		Apply: func(c *Config) {
			c.Yaw.Wrap = false
			c.Yaw.Timeout = 0
			c.Yaw.IntegralLimit = 0
			c.Altitude.Timeout = 0
		},
	},
}

// GetPreset returns the defaults with the named preset applied, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	p.Apply(cfg)
	return cfg
}

// ApplyPreset applies the named preset to cfg.
func ApplyPreset(cfg *Config, name string) bool {
	p, ok := Presets[name]
	if ok {
		p.Apply(cfg)
	}
	return ok
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
