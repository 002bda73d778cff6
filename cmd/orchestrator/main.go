package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AaronLay10/FoleySim/internal/api"
	"github.com/AaronLay10/FoleySim/internal/config"
	"github.com/AaronLay10/FoleySim/internal/events"
	"github.com/AaronLay10/FoleySim/internal/logging"
	"github.com/AaronLay10/FoleySim/internal/mqtt"
	"github.com/AaronLay10/FoleySim/internal/orchestrator"
	"github.com/AaronLay10/FoleySim/internal/session"
	"github.com/AaronLay10/FoleySim/internal/storage/postgres"
	"github.com/AaronLay10/FoleySim/internal/version"
)

func main() {
	cfg := loadConfig()
	log := logging.New(os.Stdout, logging.Options{
		Level:   cfg.Logging.Level,
		Pretty:  cfg.Logging.Pretty,
		Session: events.SessionID,
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("orchestrator failed")
	}
}

func loadConfig() *config.SimConfig {
	path := os.Getenv("SIM_CONFIG")
	if path == "" {
		path = "sim.yaml"
	}
	cfg, err := config.LoadSimConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default()
	}
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Str("path", path).Msg("failed to load sim.yaml")
	}
	return cfg
}

func run(cfg *config.SimConfig, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "orchestrator starting", map[string]interface{}{
		"service":  "foleysim",
		"version":  version.String(),
		"hostname": hostname,
		"pid":      os.Getpid(),
		"room_id":  cfg.Room.ID,
	})

	ready := api.NewReadiness()

	pg, err := postgres.New(postgres.Options{Password: secrets.PGPassword, RoomID: cfg.Room.ID})
	if err != nil {
		log.Warn().Err(err).Msg("postgres unavailable, events stay in memory")
		ready.SetPostgres(false, true)
	} else {
		defer pg.Close()
		events.SetPostgresClient(pg)
		ready.SetPostgres(true, true)
	}

	proc, err := loadProcedure(cfg)
	if err != nil {
		return err
	}

	metrics := api.NewMetrics(cfg.Room.ID, ready)

	// The bridge is created after the loop; OnConnect only runs once the
	// client connects, by which point it is set.
	var bridge *mqtt.InputBridge
	client := mqtt.NewClient(mqtt.ClientOptions{
		BrokerURL: cfg.Network.MQTTURL,
		ClientID:  "foleysim-" + cfg.Room.ID + "-" + uuid.NewString()[:8],
		Username:  secrets.MQTTUsername,
		Password:  secrets.MQTTPassword,
		Logger:    logging.Component(log, "mqtt"),
		OnConnect: func() {
			ready.SetMQTTConnected(true)
			if bridge == nil {
				return
			}
			bridge.ClearSubscriptions()
			if err := bridge.SubscribeAll(); err != nil {
				log.Error().Err(err).Msg("mqtt subscribe failed")
			}
		},
		OnConnectionLost: func(error) {
			ready.SetMQTTConnected(false)
			if bridge != nil {
				bridge.ClearSubscriptions()
			}
		},
	})
	ready.SetMQTT(false, true)
	cues := orchestrator.NewCueExecutor(client, cfg.CueTopic())

	timing := orchestrator.Timing{
		MediaDelay:      cfg.Timing.MediaDelay,
		FeedbackDismiss: cfg.Timing.FeedbackDismiss,
	}
	seqLog := logging.Component(log, "sequencer")
	factory := func() (*orchestrator.Sequencer, error) {
		return orchestrator.NewSequencer(proc,
			orchestrator.WithObserver(orchestrator.Observers{orchestrator.EventObserver{}, metrics}),
			orchestrator.WithCuePlayer(cues),
			orchestrator.WithTiming(timing),
			orchestrator.WithLogger(seqLog),
		)
	}

	loop := session.New(factory,
		session.WithTickInterval(cfg.Timing.TickInterval),
		session.WithLogger(logging.Component(log, "session")),
	)

	registry := mqtt.NewControllerRegistry()
	monitor := mqtt.NewMonitor(registry, mqtt.DefaultHandSpecs(), 2.0, cfg.Controllers.HeartbeatTimeout)
	monitor.OnOffline(loop.ReleaseHands)
	bridge = mqtt.NewInputBridge(client, cfg.Network.MQTTTopicPrefix, monitor, registry, loop, logging.Component(log, "bridge"))

	if client.Start() {
		ready.SetMQTTConnected(true)
	}
	defer client.Disconnect()

	monitor.Start(time.Second)
	defer monitor.Stop()

	loopErr := make(chan error, 1)
	go func() { loopErr <- loop.Run(ctx) }()
	ready.SetOrchestratorReady(true)

	server := api.NewServer(api.Options{
		Session:   loop,
		Readiness: ready,
		Metrics:   metrics,
		Auth:      api.NewAuth(secrets),
		History:   historyOf(pg),
		Logger:    logging.Component(log, "api"),
	})
	if !secrets.AdminAuthEnabled() {
		log.Warn().Msg("admin credentials not set, console is unauthenticated")
	}

	apiErr := make(chan error, 1)
	go func() { apiErr <- server.ListenAndServe(ctx, cfg.UIPort()) }()

	var apiDone, loopDone bool
	select {
	case err = <-apiErr:
		apiDone = true
	case err = <-loopErr:
		loopDone = true
	case <-ctx.Done():
	}
	stop()
	ready.SetOrchestratorReady(false)
	// Let the loop cancel outstanding cues before the client disconnects.
	if !loopDone {
		<-loopErr
	}
	if !apiDone {
		if serr := <-apiErr; serr != nil {
			log.Error().Err(serr).Msg("api shutdown")
		}
	}

	events.Emit("info", "system.shutdown", "orchestrator stopping", nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadProcedure(cfg *config.SimConfig) (*orchestrator.Procedure, error) {
	var (
		proc *orchestrator.Procedure
		err  error
	)
	if cfg.Procedure != "" {
		proc, err = orchestrator.LoadProcedure(cfg.Procedure)
	} else {
		proc, err = orchestrator.DefaultProcedure()
	}
	if err != nil {
		return nil, err
	}
	if cfg.Gating.ToleranceM != nil {
		proc.Tolerance = *cfg.Gating.ToleranceM
	}
	if len(cfg.Gating.ErgonomicOffset) == 3 {
		proc.ErgonomicOffset = cfg.Gating.ErgonomicOffset
	}
	return proc, nil
}

// historyOf avoids handing the server a typed nil.
func historyOf(pg *postgres.Client) api.History {
	if pg == nil {
		return nil
	}
	return pg
}
