package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aircon_manager/internal/config"
	"aircon_manager/internal/handlers"
	"aircon_manager/internal/logger"
	"aircon_manager/internal/plant"
	"aircon_manager/internal/repository"
	"aircon_manager/internal/repository/db"
	"aircon_manager/internal/server"
	"aircon_manager/internal/service"
	"aircon_manager/internal/telemetry"
)

const defaultSimTick = 1 * time.Second

func main() {
	// load configs/config.yml
	cfg, warnings, err := config.Load("configs", "config")
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	log := newLogger(cfg)
	for _, w := range warnings {
		log.Warnw("config value adjusted", "detail", w)
	}

	// open DB
	conn, err := openDB(cfg, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(conn)
	pl, sim := newPlant(cfg)

	var tele service.CyclePublisher
	if cfg.Kafka.Enabled {
		pub := telemetry.New(cfg.Kafka, log)
		defer func() { _ = pub.Close() }()
		tele = pub
	}

	services := service.NewService(cfg, repos, pl, tele, log)
	apiHandler := handlers.NewHandler(services, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// start the simulated house when configured, then the control loops
	if sim != nil {
		go sim.Run(ctx, defaultSimTick)
	}
	go services.Controller.Run(ctx)
	go services.Critical.Run(ctx)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
}

func newLogger(cfg *config.Config) *logger.Logger {
	if cfg.Log.File == "" {
		return logger.Get(cfg.Log.Level)
	}
	return logger.GetWithFile(cfg.Log.Level, &logger.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
}

// openDB initializes the SQLite database using configuration.
func openDB(cfg *config.Config, log *logger.Logger) (*sql.DB, error) {
	path := cfg.DB.Path
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "app.db")
		path = "app.db"
	}
	return db.InitDB(path)
}

// newPlant picks the simulated house or the HTTP bridge to the real one.
// The second return is non-nil only for the simulator, whose physics need
// their own ticker.
func newPlant(cfg *config.Config) (plant.Plant, *plant.SimPlant) {
	if cfg.Sim.Enabled {
		names := make([]string, 0, len(cfg.Rooms))
		for _, r := range cfg.Rooms {
			names = append(names, r.Name)
		}
		sim := plant.NewSimPlant(names, plant.SimOptions{
			OutdoorC:       cfg.Sim.OutdoorTemp,
			StartC:         cfg.Sim.AmbientTemp,
			NoiseAmplitude: 0.05,
			Seed:           time.Now().UnixNano(),
		})
		return sim, sim
	}
	return plant.NewHTTPBridge(cfg.Bridge.BaseURL, cfg.Bridge.Timeout), nil
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
