// Command ctisim runs a fake CTI gateway for local development. Point the
// bridge's CTI_SIDE_A_HOST/CTI_SIDE_B_HOST at it and use the control API to
// change agent states or drop connections.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/sim"
)

type options struct {
	listen       string
	controlPort  string
	rosterPath   string
	agents       int
	peripheralID uint32
	interval     time.Duration
	seed         int64
	logLevel     string
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	flagSet := pflag.NewFlagSet("ctisim", pflag.ContinueOnError)
	flagSet.StringVar(&opts.listen, "listen", ":42027", "gateway listen address")
	flagSet.StringVar(&opts.controlPort, "control-port", "8081", "control API port")
	flagSet.StringVarP(&opts.rosterPath, "roster", "r", "", "YAML roster file (generated when empty)")
	flagSet.IntVarP(&opts.agents, "agents", "n", 50, "number of agents to generate without a roster")
	flagSet.Uint32Var(&opts.peripheralID, "peripheral", 5000, "peripheral id of generated agents")
	flagSet.DurationVar(&opts.interval, "interval", time.Second, "time between random state changes (0 disables)")
	flagSet.Int64Var(&opts.seed, "seed", 0, "random seed (0 uses the clock)")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if opts.rosterPath == "" && opts.agents <= 0 {
		return nil, errors.New("--agents must be positive")
	}
	if opts.seed == 0 {
		opts.seed = time.Now().UnixNano()
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	// Setup logger
	level, err := zerolog.ParseLevel(opts.logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Str("service", "ctisim").
		Logger()

	roster, err := loadRoster(opts)
	if err != nil {
		return err
	}
	logger.Info().Int("agents", len(roster.Agents)).Uint32("peripheral_id", roster.PeripheralID).Msg("roster ready")

	gateway := sim.NewGateway(roster, opts.seed, logger)
	if err := gateway.Listen(opts.listen); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() { errCh <- gateway.Serve(ctx) }()
	go func() { errCh <- sim.NewAPI(gateway, logger).Start(ctx, ":"+opts.controlPort) }()
	if opts.interval > 0 {
		go gateway.RunGenerator(ctx, opts.interval)
	}

	logger.Info().
		Str("gateway", gateway.Addr()).
		Str("control_api", fmt.Sprintf("http://localhost:%s", opts.controlPort)).
		Msg("ctisim ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down ctisim")
		return nil
	case err := <-errCh:
		return err
	}
}

func loadRoster(opts *options) (*sim.Roster, error) {
	if opts.rosterPath != "" {
		return sim.LoadRoster(opts.rosterPath)
	}
	return sim.GenerateRoster(opts.agents, opts.peripheralID, opts.seed), nil
}
