package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaz8081/motion-installer/internal/config"
	"github.com/chaz8081/motion-installer/internal/serialport"
	"github.com/chaz8081/motion-installer/internal/transfer"
	"github.com/chaz8081/motion-installer/internal/ui"
)

type sendFlags struct {
	configPath string
	transport  string
	ports      []string
	continuous bool
	backend    string
	tui        bool
	logLevel   string
}

func newSendCmd() *cobra.Command {
	flags := &sendFlags{}

	cmd := &cobra.Command{
		Use:   "send <file>...",
		Short: "Encode motion programs and install them into robots",
		Long: `Load and encode every program in the given files, then upload them through
each selected adapter in parallel. Over BLE each adapter connects to the
nearest robot no other adapter has claimed. With --continuous the upload
repeats for every new robot until interrupted.

Ctrl+C stops the run; every adapter disconnects before the command exits.`,
		Example: `  # Upload through every detected BLE dongle
  motion-installer send wave.mfx bow.json

  # Two dongles, keep serving robots until Ctrl+C
  motion-installer send --port /dev/ttyACM0 --port /dev/ttyACM1 --continuous dance.mfx

  # Over a USB serial cable
  motion-installer send --transport wired --port /dev/ttyUSB0 walk.mfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "path to config file (default: ~/.config/motion-installer/config.yaml)")
	cmd.Flags().StringVar(&flags.transport, "transport", "", "transport: ble|wired (overrides config)")
	cmd.Flags().StringArrayVar(&flags.ports, "port", nil, "serial port or host adapter to use (repeatable)")
	cmd.Flags().BoolVar(&flags.continuous, "continuous", false, "keep uploading to new robots until interrupted (ble only)")
	cmd.Flags().StringVar(&flags.backend, "backend", "", "ble backend: dongle|system (overrides config)")
	cmd.Flags().BoolVar(&flags.tui, "tui", false, "show a live status view")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")

	return cmd
}

// applyFlags copies explicitly set flags over the loaded config.
func applyFlags(cmd *cobra.Command, cfg *config.Config, flags *sendFlags) {
	if flags.transport != "" {
		cfg.Transport = flags.transport
	}
	if flags.backend != "" {
		cfg.BLE.Backend = flags.backend
	}
	if cmd.Flags().Changed("continuous") {
		cfg.Continuous = flags.continuous
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
}

func runSend(cmd *cobra.Command, flags *sendFlags, files []string) error {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	applyFlags(cmd, cfg, flags)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	setupLogging(cfg.LogLevel)

	cmds, err := loadCommands(cmd.ErrOrStderr(), files)
	if err != nil {
		return err
	}
	adapters, err := selectAdapters(cfg, flags.ports, serialport.List)
	if err != nil {
		return err
	}
	factory, err := newFactory(cfg, hostOpeners())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printBanner(out, cfg, adapters, len(cmds))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := transfer.NewRunner(transfer.RunnerOptions{
		Factory:     factory,
		EventBuffer: cfg.EventBuffer,
	})

	var runErr error
	if flags.tui {
		done := make(chan error, 1)
		go func() { done <- runner.Run(ctx, cmds, adapters) }()
		if err := ui.Run(runner.Events(), adapters, stop); err != nil {
			stop()
			<-done
			return fmt.Errorf("status view: %w", err)
		}
		runErr = <-done
	} else {
		printed := make(chan struct{})
		go func() {
			defer close(printed)
			for ev := range runner.Events() {
				printEvent(out, ev)
			}
		}()
		runErr = runner.Run(ctx, cmds, adapters)
		<-printed
	}

	if ctx.Err() != nil {
		fmt.Fprintln(out, labelStyle.Render("Stopped."))
		return nil
	}
	if runErr != nil {
		return runErr
	}
	fmt.Fprintln(out, okStyle.Render("Done."))
	return nil
}

func printEvent(w io.Writer, ev transfer.Event) {
	prefix := labelStyle.Render("[" + ev.Adapter + "]")
	switch ev.Kind {
	case transfer.EventMessage:
		if ev.Err != nil {
			fmt.Fprintf(w, "%s %s\n", prefix, errStyle.Render(ev.Message))
			return
		}
		fmt.Fprintf(w, "%s %s\n", prefix, ev.Message)
	case transfer.EventItemSent:
		fmt.Fprintf(w, "%s %s %d/%d\n", prefix, ev.Program, ev.Sent, ev.Total)
	case transfer.EventFinished:
		fmt.Fprintf(w, "%s %s\n", prefix, okStyle.Render(fmt.Sprintf("finished %d/%d", ev.Sent, ev.Total)))
	}
}

// printBanner displays the run configuration summary.
func printBanner(w io.Writer, cfg *config.Config, adapters []string, programs int) {
	transport := cfg.Transport
	if transport == "ble" {
		transport += " (" + cfg.BLE.Backend + ")"
	}
	mode := "single"
	if cfg.Continuous {
		mode = "continuous"
	}
	fmt.Fprintln(w, titleStyle.Render("=== motion-installer ==="))
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Transport:"), transport)
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Adapters: "), strings.Join(adapters, ", "))
	fmt.Fprintf(w, "  %s %d\n", labelStyle.Render("Programs: "), programs)
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Mode:     "), mode)
	fmt.Fprintln(w, titleStyle.Render("========================"))
}
