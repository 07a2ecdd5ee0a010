package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/skratchdot/open-golang/open"

	"dronectl/internal/pkg/vehiclesim"
	"dronectl/pkg/api"
	"dronectl/pkg/auth"
	"dronectl/pkg/config"
	"dronectl/pkg/journal"
	"dronectl/pkg/logging"
	"dronectl/pkg/vehicle"
	"dronectl/pkg/zones"
)

type globalOptions struct {
	Config string `long:"config" short:"c" description:"path to a json or yaml config file"`
}

type serveCommand struct {
	global *globalOptions

	Open      bool `long:"open" description:"open the browser panel once the server is up"`
	NoJournal bool `long:"no-journal" description:"do not record commands to the database"`
}

type tokenCommand struct {
	global *globalOptions

	Operator string        `long:"operator" default:"operator" description:"operator name put in the token"`
	TTL      time.Duration `long:"ttl" default:"12h" description:"token lifetime"`
}

func main() {
	var opts globalOptions
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)

	_, _ = parser.AddCommand("serve", "run the control backend", "Serves the command API, telemetry and the browser panel.", &serveCommand{global: &opts})
	_, _ = parser.AddCommand("token", "issue an operator token", "Prints an HS256 token signed with the configured JWT secret.", &tokenCommand{global: &opts})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (c *serveCommand) Execute(args []string) error {
	cfg, err := config.Parse(c.global.Config)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Infow("initializing drone control backend", "service", cfg.ServiceName, "autopilot", cfg.AutopilotGRPC)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, err := vehicle.NewVehicle(vehicle.VehicleDTO{
		SerialNumber: cfg.Vehicle.SerialNumber,
		Model:        cfg.Vehicle.Model,
		BatteryLevel: cfg.Vehicle.BatteryLevel,
		Latitude:     cfg.Vehicle.Latitude,
		Longitude:    cfg.Vehicle.Longitude,
		PayloadLimit: cfg.Vehicle.PayloadLimit,
	})
	if err != nil {
		return errors.Wrap(err, "could not create vehicle from config")
	}

	opts := vehiclesim.DefaultOptions()
	opts.Tick = time.Duration(cfg.Vehicle.TickMillis) * time.Millisecond
	opts.DrainPerMinute = cfg.Vehicle.DrainPerMinute
	opts.LinkTimeout = time.Duration(cfg.Vehicle.LinkTimeoutSeconds * float64(time.Second))
	opts.Home = &orb.Point{cfg.Vehicle.Longitude, cfg.Vehicle.Latitude}
	opts.KeepInRadius = cfg.Vehicle.KeepInRadius
	opts.ReturnSpeed = cfg.Vehicle.ReturnSpeed
	opts.WindNorth = cfg.Vehicle.WindNorth
	opts.WindEast = cfg.Vehicle.WindEast
	sim := vehiclesim.New(v, opts, log.Named("vehiclesim"))
	go func() {
		if err := sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("simulator stopped", "error", err)
		}
	}()

	var j *journal.Journal
	if !c.NoJournal {
		j, err = journal.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer j.Close()
		log.Infow("command journal opened", "path", cfg.DatabasePath)
	}

	z := zones.Load(log.Named("zones"), cfg.ZonePaths...)
	log.Infow("geozones loaded", "count", z.Len())

	env := api.New(cfg, sim, j, z, log.Named("api"))
	env.Cargo = v

	if c.Open {
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := open.Run(cfg.URL()); err != nil {
				log.Warnw("could not open browser", "url", cfg.URL(), "error", err)
			}
		}()
	}

	return env.Serve(ctx)
}

func (c *tokenCommand) Execute(args []string) error {
	cfg, err := config.Parse(c.global.Config)
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return errors.New("no jwt secret configured, set jwt_secret or JWT_SECRET")
	}

	token, err := auth.Issue(cfg.JWTSecret, c.Operator, c.TTL)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
