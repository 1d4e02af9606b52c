// cmd/fleetmon/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-fleetmon/internal/alarm"
	"github.com/tamzrod/modbus-fleetmon/internal/api"
	"github.com/tamzrod/modbus-fleetmon/internal/config"
	"github.com/tamzrod/modbus-fleetmon/internal/journal"
	"github.com/tamzrod/modbus-fleetmon/internal/logging"
	"github.com/tamzrod/modbus-fleetmon/internal/metrics"
	"github.com/tamzrod/modbus-fleetmon/internal/mqtt"
	"github.com/tamzrod/modbus-fleetmon/internal/pool"
	"github.com/tamzrod/modbus-fleetmon/internal/status"
	"github.com/tamzrod/modbus-fleetmon/internal/supervisor"
	"github.com/tamzrod/modbus-fleetmon/internal/writer"
)

const usage = `usage:
  fleetmon <config.yaml> [.env ...]
  fleetmon identify <address> [unit-id]`

func main() {
	boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	if os.Args[1] == "identify" {
		err = identify(os.Args[2:])
	} else {
		err = serve(os.Args[1], os.Args[2:], boot)
	}
	if err != nil {
		boot.Fatal().Err(err).Msg("fleetmon failed")
	}
}

func serve(cfgPath string, envFiles []string, boot zerolog.Logger) error {
	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath, envFiles...)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}
	boot.Debug().Str("config", cfgPath).Msg("config loaded")

	devices, err := cfg.DeviceList()
	if err != nil {
		return err
	}
	profiles, err := cfg.ProfileSet()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Shared infrastructure
	// --------------------

	e := cfg.Engine
	connPool, err := pool.New(pool.Config{
		DefaultPort:    e.Port,
		ConnectTimeout: ms(e.ConnectTimeoutMs),
		IdleTimeout:    ms(e.IdleTimeoutMs),
		Serial: pool.SerialConfig{
			BaudRate: e.Serial.BaudRate,
			DataBits: e.Serial.DataBits,
			Parity:   e.Serial.Parity,
			StopBits: e.Serial.StopBits,
		},
	}, log)
	if err != nil {
		return err
	}

	w, err := writer.Build(cfg.Control)
	if err != nil {
		return err
	}

	pub := status.NewPublisher()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec, err := metrics.New(reg)
	if err != nil {
		return err
	}
	metricSnaps, cancelMetricSnaps := pub.Subscribe(status.DefaultSubscriberBuffer)
	defer cancelMetricSnaps()
	go rec.Watch(ctx, metricSnaps)

	// ---- journal ----

	var (
		events      api.EventStore
		journalSink *journal.Journal
		journalDone = make(chan struct{})
	)
	journalCtx, stopJournal := context.WithCancel(context.Background())
	defer stopJournal()

	if cfg.Journal.Enabled {
		journalSink, err = journal.Open(cfg.Journal.Path, cfg.Journal.Buffer, log)
		if err != nil {
			return err
		}
		events = journalSink
		go func() {
			journalSink.Run(journalCtx)
			close(journalDone)
		}()
	} else {
		close(journalDone)
	}

	// --------------------
	// Supervisor
	// --------------------

	thMin, thMax := cfg.Control.ThresholdRange()
	spMin, spMax := cfg.Control.SetpointRange()

	deps := supervisor.Deps{
		Connector: supervisor.PoolConnector(connPool),
		Writer:    w,
		Publisher: pub,
		Observer:  rec,
		Logger:    log,
	}
	if journalSink != nil {
		deps.Events = journalSink
	}

	sup, err := supervisor.New(supervisor.Config{
		Interval:       ms(e.PollIntervalMs),
		Cooldown:       ms(cfg.Control.CooldownMs),
		StopTimeout:    ms(e.StopTimeoutMs),
		Profiles:       profiles,
		Threshold:      cfg.Control.Threshold,
		ThresholdRange: alarm.Range{Min: thMin, Max: thMax},
		SetpointRange:  alarm.Range{Min: spMin, Max: spMax},
		AutoControl:    cfg.Control.AutoControl,
		Maintenance:    cfg.Control.MaintenanceMode,
	}, deps)
	if err != nil {
		return err
	}

	// --------------------
	// Outer surfaces
	// --------------------

	var bridge *mqtt.Bridge
	if cfg.MQTT.Enabled {
		bridge, err = mqtt.New(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}, sup, log)
		if err != nil {
			return err
		}
		if err := bridge.Connect(ctx); err != nil {
			// Paho keeps retrying in the background.
			log.Warn().Err(err).Msg("mqtt broker not reachable yet")
		}
		mqttSnaps, cancelMQTTSnaps := pub.Subscribe(status.DefaultSubscriberBuffer)
		defer cancelMQTTSnaps()
		go bridge.Run(ctx, mqttSnaps)
	}

	var srv *api.Server
	if cfg.HTTP.Enabled {
		srv = api.NewServer(cfg.HTTP.Listen, sup, events, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), log)
		if err := srv.Start(ctx); err != nil {
			return err
		}
	}

	// --------------------
	// Run until signalled
	// --------------------

	if err := sup.Start(ctx, devices); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("shutdown requested")

	rep := sup.Stop(ms(e.StopTimeoutMs))
	if len(rep.Stuck) > 0 {
		log.Warn().Strs("devices", rep.Stuck).Msg("pollers left running at exit")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if srv != nil {
		if err := srv.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
	}
	if bridge != nil {
		bridge.Close()
	}

	stopJournal()
	<-journalDone
	if journalSink != nil {
		if err := journalSink.Close(); err != nil {
			log.Warn().Err(err).Msg("journal close")
		}
	}

	log.Info().Msg("fleetmon stopped")
	return nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
