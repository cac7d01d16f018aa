// Command irrigation-controller reads soil and climate sensors, reports them
// upstream, polls the server for an operating mode and drives the pump relay.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/sweeney/irrigation-controller/internal/clock"
	"github.com/sweeney/irrigation-controller/internal/config"
	"github.com/sweeney/irrigation-controller/internal/controller"
	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/logger"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/modepoll"
	"github.com/sweeney/irrigation-controller/internal/mqtt"
	"github.com/sweeney/irrigation-controller/internal/network"
	"github.com/sweeney/irrigation-controller/internal/relay"
	"github.com/sweeney/irrigation-controller/internal/sensor"
	"github.com/sweeney/irrigation-controller/internal/status"
	"github.com/sweeney/irrigation-controller/internal/telemetry"
	"github.com/sweeney/irrigation-controller/internal/web"
)

func main() {
	fs := config.NewFlagSet(os.Args[0])
	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	printConfig, _ := fs.GetBool("print-config")
	printState, _ := fs.GetBool("print-state")

	if err := run(cfg, printConfig, printState, log); err != nil {
		log.Fatalw("fatal", "err", err)
	}
}

func run(cfg *config.Config, printConfig, printState bool, log *logger.Logger) error {
	if printConfig {
		return cfg.Dump(os.Stdout)
	}

	sensors, err := sensor.NewIIOReader(cfg.Sensor.ClimateDir, cfg.Sensor.SoilPath, cfg.Sensor.SoilMax)
	if err != nil {
		return fmt.Errorf("init sensors: %w", err)
	}
	if printState {
		return printReadings(os.Stdout, sensors)
	}

	pin, err := gpio.NewRealPin(cfg.Relay.Chip, cfg.Relay.Pin, cfg.Relay.ActiveLow)
	if err != nil {
		return fmt.Errorf("init relay pin: %w", err)
	}
	defer pin.Close()

	clk := clock.NewSystem(cfg.Zone(), cfg.Clock.NTPServer, cfg.Clock.SyncInterval)
	rel := relay.New(pin, cfg.Relay.MaxOn, clk.Now)
	if err := rel.Init(); err != nil {
		return err
	}

	// Block until the service host is reachable. Only a signal interrupts.
	bootCtx, stopBoot := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	probeAddr, err := network.ProbeAddr(cfg.Telemetry.ClimateURL)
	if err != nil {
		stopBoot()
		return err
	}
	log.Infow("waiting for network", "probe", probeAddr)
	attempts, err := network.WaitOnline(bootCtx, network.TCPProbe(probeAddr, cfg.Network.ProbeTimeout), cfg.Network.ProbeInterval, log.Named("network"))
	if err != nil {
		stopBoot()
		log.Infow("interrupted before network came up", "attempts", attempts)
		return nil
	}
	log.Infow("network up", "attempts", attempts)
	if err := clk.Sync(bootCtx); err != nil {
		log.Warnw("initial clock sync failed, using host clock", "err", err)
	}
	stopBoot()

	client := network.NewHTTPClient(cfg.HTTP.Timeout, cfg.HTTP.Insecure)
	reporter := telemetry.New(telemetry.Config{
		DeviceID:   cfg.DeviceID,
		ClimateURL: cfg.Telemetry.ClimateURL,
		SoilURL:    cfg.Telemetry.SoilURL,
	}, client, sensors)
	poller, err := modepoll.New(modepoll.Config{
		URL:       cfg.Mode.URL,
		ModePath:  cfg.Mode.ModePath,
		SlotPaths: cfg.Mode.SlotPaths,
	}, client)
	if err != nil {
		return err
	}

	var publisher mqtt.Publisher
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			DeviceID:   cfg.DeviceID,
			BufferSize: cfg.MQTT.BufferSize,
		}, log.Named("mqtt"))
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher = p
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		DeviceID:    cfg.DeviceID,
		ClimateURL:  cfg.Telemetry.ClimateURL,
		SoilURL:     cfg.Telemetry.SoilURL,
		ModeURL:     cfg.Mode.URL,
		TelemetryMs: cfg.Telemetry.Interval.Milliseconds(),
		PollMs:      cfg.Mode.Interval.Milliseconds(),
		MaxOnMs:     cfg.Relay.MaxOn.Milliseconds(),
		HeartbeatMs: cfg.Loop.Heartbeat.Milliseconds(),
		Threshold:   cfg.Threshold,
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.Web.Addr,
	})

	ctl := controller.New(controller.Config{
		TelemetryInterval: cfg.Telemetry.Interval,
		PollInterval:      cfg.Mode.Interval,
		Threshold:         cfg.Threshold,
		Schedule:          cfg.DefaultSchedule(),
	}, controller.Deps{
		Clock:     clk,
		Sensors:   sensors,
		Relay:     rel,
		Reporter:  reporter,
		Poller:    poller,
		Publisher: publisher,
		Tracker:   tracker,
		Log:       log.Named("loop"),
	})

	publishSystem(publisher, mqtt.SystemEvent{
		Timestamp: clk.Now(),
		Event:     mqtt.EventStartup,
		Retained:  true,
		Status:    status.Compact(tracker.Snapshot()),
	}, log)

	if cfg.Web.Addr != "" {
		gin.SetMode(gin.ReleaseMode)
		srv := web.New(cfg.Web.Addr, tracker, web.Options{
			CacheTTL:  cfg.Web.CacheTTL,
			RateLimit: rate.Limit(cfg.Web.RateLimit),
			RateBurst: cfg.Web.RateBurst,
		}, log.Named("web"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("http server error", "err", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Infow("status server listening", "addr", cfg.Web.Addr)
	}

	log.Infow("started",
		"device", cfg.DeviceID,
		"poll", cfg.Loop.Poll,
		"telemetry_interval", cfg.Telemetry.Interval,
		"mode_interval", cfg.Mode.Interval,
		"max_on", cfg.Relay.MaxOn,
		"zone", cfg.Zone(),
		"broker", cfg.MQTT.Broker)

	ticker := time.NewTicker(cfg.Loop.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctl, publisher, tracker, cfg.Loop.Heartbeat, clk.Now, ticker.C, sigCh, log)
}

// loop is one pass of the control loop plus its shutdown.
type loop interface {
	Tick(ctx context.Context)
	Shutdown() error
}

func runLoop(ctl loop, publisher mqtt.Publisher, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := now()
	beat := logic.NewTimer(heartbeat)

	for {
		select {
		case s := <-sig:
			name := signalName(s)
			log.Infow("received signal, shutting down", "signal", name)
			if err := ctl.Shutdown(); err != nil {
				log.Errorw("failed to switch pump off", "err", err)
			}
			publishSystem(publisher, mqtt.SystemEvent{
				Timestamp: now(),
				Event:     mqtt.EventShutdown,
				Reason:    name,
				Retained:  true,
				Status:    status.Compact(tracker.Snapshot()),
			}, log)
			return nil

		case <-tick:
			ctl.Tick(ctx)

			t := now()
			if elapsed := t.Sub(start); beat.Due(elapsed) {
				beat.Mark(elapsed)
				snap := tracker.Snapshot()
				log.Infow("heartbeat",
					"uptime", snap.Uptime().Truncate(time.Second),
					"mode", snap.Mode.Mode,
					"relay_active", snap.Relay.Active,
					"pump_on", snap.Counts.PumpOn,
					"telemetry_failed", snap.Counts.TelemetryFailed,
					"poll_failed", snap.Counts.PollFailed)
				publishSystem(publisher, mqtt.SystemEvent{
					Timestamp: t,
					Event:     mqtt.EventHeartbeat,
					Status:    status.Compact(snap),
				}, log)
			}
		}
	}
}

func publishSystem(p mqtt.Publisher, ev mqtt.SystemEvent, log *logger.Logger) {
	if p == nil {
		return
	}
	if err := p.PublishSystem(ev); err != nil {
		log.Warnw("failed to publish system event", "event", ev.Event, "err", err)
		return
	}
	log.Debugw("published system event", "event", ev.Event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// printReadings reads each sensor once. Individual read failures are
// printed rather than returned.
func printReadings(w io.Writer, r sensor.Reader) error {
	if t, err := r.Temperature(); err != nil {
		fmt.Fprintf(w, "temperature: error: %v\n", err)
	} else {
		fmt.Fprintf(w, "temperature: %.1f C\n", t)
	}
	if h, err := r.Humidity(); err != nil {
		fmt.Fprintf(w, "humidity: error: %v\n", err)
	} else {
		fmt.Fprintf(w, "humidity: %.1f %%\n", h)
	}
	raw, err := r.SoilRaw()
	if err == nil {
		err = sensor.ValidateSoil(raw)
	}
	if err != nil {
		fmt.Fprintf(w, "soil: error: %v\n", err)
		return nil
	}
	_, err = fmt.Fprintf(w, "soil: raw %d, moisture %d%%\n", raw, logic.MoisturePercent(raw))
	return err
}
