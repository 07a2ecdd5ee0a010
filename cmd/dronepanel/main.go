package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dronectl/pkg/cargo"
	"dronectl/pkg/client"
	"dronectl/pkg/logging"
	"dronectl/pkg/panel"
	"dronectl/pkg/telemetry"
)

type globalOptions struct {
	API      string `long:"api" env:"DRONE_API" default:"http://localhost:5000" description:"backend base URL"`
	Lang     string `long:"lang" env:"PANEL_LANG" default:"en" description:"label language (en, ru, de, pl)"`
	Token    string `long:"token" env:"DRONE_TOKEN" description:"bearer token for command routes"`
	Mode     string `long:"mode" default:"status" choice:"status" choice:"dialog" description:"how results are shown"`
	LogLevel string `long:"log-level" default:"warn" description:"log level"`
}

// session is what every subcommand needs: a logger, a client and a panel
// on stdout.
type session struct {
	log    *zap.SugaredLogger
	client *client.Client
	panel  *panel.Panel
}

func (g *globalOptions) open() (*session, error) {
	log, err := logging.NewConsole(g.LogLevel)
	if err != nil {
		return nil, err
	}

	display, err := panel.NewDisplay(g.Mode, os.Stdout)
	if err != nil {
		return nil, err
	}

	c := client.New(g.API, client.WithToken(g.Token), client.WithLogger(log.Named("client")))
	return &session{
		log:    log,
		client: c,
		panel:  panel.New(c, display, g.Lang, log.Named("panel")),
	}, nil
}

// finish ends the status line and turns a failed result into an exit code.
func finish(res client.Result) error {
	fmt.Println()
	if res.Failed() {
		return errors.New(res.Err())
	}
	return nil
}

type healthCommand struct{ global *globalOptions }

func (c *healthCommand) Execute(args []string) error {
	s, err := c.global.open()
	if err != nil {
		return err
	}
	return finish(s.panel.CheckHealth(context.Background()))
}

type armCommand struct{ global *globalOptions }

func (c *armCommand) Execute(args []string) error {
	s, err := c.global.open()
	if err != nil {
		return err
	}
	return finish(s.panel.Arm(context.Background()))
}

type takeoffCommand struct {
	global *globalOptions

	Alt string `long:"alt" default:"10" description:"target altitude in metres"`
}

func (c *takeoffCommand) Execute(args []string) error {
	s, err := c.global.open()
	if err != nil {
		return err
	}
	return finish(s.panel.Takeoff(context.Background(), c.Alt))
}

type landCommand struct{ global *globalOptions }

func (c *landCommand) Execute(args []string) error {
	s, err := c.global.open()
	if err != nil {
		return err
	}
	return finish(s.panel.Land(context.Background()))
}

type loadCommand struct {
	global *globalOptions

	Name      string `long:"name" required:"true" description:"parcel name"`
	Weight    uint   `long:"weight" required:"true" description:"parcel weight in grams"`
	Code      string `long:"code" required:"true" description:"parcel code"`
	Recipient string `long:"recipient" description:"who the parcel is for"`
}

func (c *loadCommand) Execute(args []string) error {
	s, err := c.global.open()
	if err != nil {
		return err
	}

	res := s.client.LoadParcel(context.Background(), cargo.ParcelDTO{
		Name:      c.Name,
		Weight:    c.Weight,
		Code:      c.Code,
		Recipient: c.Recipient,
	})
	return finish(s.panel.Show(panel.ActionLoad, res))
}

type unloadCommand struct{ global *globalOptions }

func (c *unloadCommand) Execute(args []string) error {
	s, err := c.global.open()
	if err != nil {
		return err
	}
	return finish(s.panel.Show(panel.ActionUnload, s.client.UnloadCargo(context.Background())))
}

type watchCommand struct{ global *globalOptions }

func (c *watchCommand) Execute(args []string) error {
	s, err := c.global.open()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = s.client.Watch(ctx, func(sample telemetry.Sample) {
		fmt.Printf("\r\x1b[2K%s", telemetry.FormatRaw(sample))
	})
	fmt.Println()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type heartbeatCommand struct {
	global *globalOptions

	Service  string        `long:"service" default:"dronepanel" description:"service name reported to the backend"`
	Interval time.Duration `long:"interval" default:"15s" description:"time between heartbeats"`
}

func (c *heartbeatCommand) Execute(args []string) error {
	s, err := c.global.open()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pid := strconv.Itoa(os.Getpid())
	hostname, _ := os.Hostname()

	s.log.Infow("sending heartbeats", "service", c.Service, "interval", c.Interval)
	err = s.client.BeatLoop(ctx, c.Interval, func() telemetry.Heartbeat {
		return telemetry.Heartbeat{
			Service: c.Service,
			Status:  "ok",
			Details: map[string]interface{}{"pid": pid, "host": hostname},
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type interactiveCommand struct{ global *globalOptions }

func (c *interactiveCommand) Execute(args []string) error {
	s, err := c.global.open()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	err = s.panel.Interactive(ctx, panel.Terminal{Stdin: os.Stdin, Stdout: os.Stdout})
	fmt.Println()
	return err
}

func main() {
	var opts globalOptions
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)

	commands := []struct {
		name, short string
		data        interface{}
	}{
		{"health", "check the backend and autopilot link", &healthCommand{global: &opts}},
		{"arm", "arm the motors", &armCommand{global: &opts}},
		{"takeoff", "arm and climb to an altitude", &takeoffCommand{global: &opts}},
		{"land", "land the vehicle", &landCommand{global: &opts}},
		{"load", "put a parcel on board", &loadCommand{global: &opts}},
		{"unload", "take all parcels off", &unloadCommand{global: &opts}},
		{"watch", "stream live telemetry", &watchCommand{global: &opts}},
		{"heartbeat", "report this panel as alive until interrupted", &heartbeatCommand{global: &opts}},
		{"interactive", "menu driven control panel", &interactiveCommand{global: &opts}},
	}
	for _, cmd := range commands {
		if _, err := parser.AddCommand(cmd.name, cmd.short, "", cmd.data); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

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
