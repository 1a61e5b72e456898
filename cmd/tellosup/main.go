package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/san-kum/tellosup/internal/config"
)

var (
	configFile string
	preset     string
	linkKind   string
	dataDir    string
	backend    string
	logLevel   string
	kp         float64
	ki         float64
	kd         float64
	// voice
	transcript string
	grammar    string
	// output
	outFile string
	fields  []string

	cfg *config.Config
)

// main registers the commands and shared flags and runs the root command.
func main() {
	rootCmd := &cobra.Command{
		Use:               "tellosup",
		Short:             "semi-autonomous Tello flight supervisor",
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "apply a named preset")
	pf.StringVar(&linkKind, "link", "tello", "vehicle link (tello, sim)")
	pf.StringVar(&dataDir, "data", config.DefaultDataDir, "session data location")
	pf.StringVar(&backend, "backend", "csv", "session store (csv, sqlite)")
	pf.StringVar(&logLevel, "log-level", "info", "log level")
	pf.Float64Var(&kp, "kp", 0.8, "yaw pid kp")
	pf.Float64Var(&ki, "ki", 0.1, "yaw pid ki")
	pf.Float64Var(&kd, "kd", 0.05, "yaw pid kd")

	flyCmd := &cobra.Command{
		Use:   "fly",
		Short: "fly from the keyboard cockpit",
		Args:  cobra.NoArgs,
		RunE:  runFly,
	}

	voiceCmd := &cobra.Command{
		Use:   "voice",
		Short: "fly by voice",
		Args:  cobra.NoArgs,
		RunE:  runVoice,
	}
	voiceCmd.Flags().StringVar(&transcript, "transcript", "", "read utterances as text lines from a file, - for stdin")
	voiceCmd.Flags().StringVar(&grammar, "grammar", "offline", "command grammar (offline, online)")

	sequenceCmd := &cobra.Command{
		Use:   "sequence",
		Short: "take off, turn out and back, land",
		Args:  cobra.NoArgs,
		RunE:  runSequence,
	}

	missionCmd := &cobra.Command{
		Use:   "mission [file]",
		Short: "replay a scripted mission",
		Args:  cobra.ExactArgs(1),
		RunE:  runMission,
	}

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "list recorded sessions",
		Args:  cobra.NoArgs,
		RunE:  listSessions,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [session_id]",
		Short: "plot session telemetry",
		Args:  cobra.ExactArgs(1),
		RunE:  plotSession,
	}
	plotCmd.Flags().StringSliceVar(&fields, "field", []string{"yaw", "h", "bat"}, "telemetry fields to plot")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [session_id]",
		Short: "export a session to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outFile, "out", "o", "-", "output file, - for stdout")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				fmt.Printf("  %-12s %s\n", name, config.Presets[name].Description)
			}
			return nil
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "manage config files",
	}
	configInitCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "write the effective config to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(args[0], cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", args[0])
			return nil
		},
	}
	configCmd.AddCommand(configInitCmd)

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "list audio input devices",
		Args:  cobra.NoArgs,
		RunE:  listDevices,
	}

	rootCmd.AddCommand(flyCmd, voiceCmd, sequenceCmd, missionCmd, sessionsCmd, plotCmd, exportJSONCmd, presetsCmd, configCmd, devicesCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig builds the effective config: file, then preset, then any
// flag set on the command line.
func loadConfig(cmd *cobra.Command, args []string) error {
	cfg = config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if preset != "" && !config.ApplyPreset(cfg, preset) {
		return fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
	}

	flags := cmd.Flags()
	if flags.Changed("link") {
		cfg.Link.Kind = linkKind
	}
	if flags.Changed("data") {
		cfg.Storage.Path = dataDir
	}
	if flags.Changed("backend") {
		cfg.Storage.Backend = backend
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("kp") {
		cfg.Yaw.Kp = kp
	}
	if flags.Changed("ki") {
		cfg.Yaw.Ki = ki
	}
	if flags.Changed("kd") {
		cfg.Yaw.Kd = kd
	}
	if flags.Changed("grammar") {
		cfg.Voice.Grammar = grammar
	}

	return cfg.Validate()
}
