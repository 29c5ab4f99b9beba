package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/df-mc/dragonfly/server"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"golang.org/x/sync/errgroup"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/adapter"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/handler"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/manager"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/scheduler"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/config"
)

// spawnWorld is the name of the server's default world.
const spawnWorld = "world"

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "buildsystem.toml", "path to the configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("buildsystem stopped", zap.Error(err))
	}
}

// loadConfig reads the configuration, writing the defaults first if the file
// does not exist yet.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := config.DefaultConfig()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		return &cfg, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("logging level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	zc.Encoding = "console"
	zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	return zc.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	log := slog.New(zapslog.NewHandler(logger.Core(), zapslog.WithName("dragonfly")))

	uc := server.DefaultConfig()
	uc.Network.Address = cfg.Server.Address
	uc.Server.Name = cfg.Server.Name
	uc.World.Folder = filepath.Join(cfg.Paths.WorldContainer, spawnWorld)
	conf, err := uc.Config(log)
	if err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	srv := conf.New()

	ids, err := adapter.NewIdentities(filepath.Join(cfg.Paths.DataDir, "identities"))
	if err != nil {
		return err
	}
	eng := adapter.NewAdapter(srv, cfg.Paths.WorldContainer, spawnWorld, cfg.Permissions, ids, log, logger)
	loop := scheduler.NewLoop(cfg.Performance.TickRate, logger)

	records, err := recordStorage(cfg)
	if err != nil {
		return err
	}
	m := manager.New(cfg, logger, manager.Dependencies{
		Engine:    eng,
		Scheduler: loop,
		Storage:   records,
		Resolver:  eng,
	})
	worlds := handler.NewWorldHandler(eng, m)
	eng.HandleWorlds(worlds)
	srv.World().Handle(worlds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop.Start(context.Background())
	var initErr error
	if err := loop.Call(ctx, func() { initErr = m.Init() }); err != nil {
		return err
	}
	if initErr != nil {
		return fmt.Errorf("init worlds: %w", initErr)
	}

	store, err := backupStorage(cfg, logger)
	if err != nil {
		return err
	}
	exec := backup.NewExecutor(cfg.Performance.BackupWorkers, cfg.Performance.BackupQueueSize, logger)
	svc, err := backup.NewService(store, exec, m, cfg, filepath.Join(cfg.Paths.DataDir, "tmp"), logger)
	if err != nil {
		return err
	}
	auto := backup.NewAutoBackup(svc, m, cfg, logger)
	_ = loop.Call(ctx, auto.Start)

	players := handler.NewPlayerHandler(eng, m, logger)
	srv.Listen()
	logger.Info("server listening", zap.String("address", cfg.Server.Address))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		for p := range srv.Accept() {
			eng.TrackPlayer(p)
			p.Handle(players)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return shutdown(loop, auto, svc, m, srv, eng, logger)
	})
	return g.Wait()
}

func shutdown(loop *scheduler.Loop, auto *backup.AutoBackup, svc *backup.Service, m *manager.Manager, srv *server.Server, eng *adapter.Adapter, logger *zap.Logger) error {
	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var closeErr error
	errs := []error{
		loop.Call(ctx, auto.Stop),
		svc.Close(ctx),
		loop.Call(ctx, func() { closeErr = m.Close() }),
	}
	if closeErr != nil {
		errs = append(errs, fmt.Errorf("close worlds: %w", closeErr))
	}
	loop.Stop()
	errs = append(errs, srv.Close(), eng.Close())
	return errors.Join(errs...)
}

func recordStorage(cfg *config.Config) (manager.Storage, error) {
	switch strings.ToLower(cfg.Paths.StorageType) {
	case "memory":
		return manager.NewMemoryStorage(), nil
	case "leveldb":
		return manager.NewLevelDBStorage(filepath.Join(cfg.Paths.DataDir, "worlds.db"))
	default:
		return manager.NewYAMLStorage(filepath.Join(cfg.Paths.DataDir, "worlds.yml"))
	}
}
