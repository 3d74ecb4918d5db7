package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"truce.ai/internal/persistence/docstore"
	persistlog "truce.ai/internal/persistence/log"
	"truce.ai/internal/sim/actors"
	"truce.ai/internal/sim/arena"
	"truce.ai/internal/sim/tuning"
)

// envConfig holds process settings that deployments set through the
// environment rather than flags.
type envConfig struct {
	DeployEnv       string   `env:"DEPLOY_ENV"`
	EnableAdminHTTP *bool    `env:"TRUCE_ENABLE_ADMIN_HTTP"`
	Store           string   `env:"TRUCE_STORE" envDefault:"sqlite"`
	RedisAddr       string   `env:"TRUCE_REDIS_ADDR"`
	RedisPassword   string   `env:"TRUCE_REDIS_PASSWORD"`
	RedisDB         int      `env:"TRUCE_REDIS_DB"`
	RedisPrefix     string   `env:"TRUCE_REDIS_PREFIX" envDefault:"truce:"`
	Admins          []string `env:"TRUCE_ADMINS" envSeparator:","`
	LogLevel        string   `env:"TRUCE_LOG_LEVEL" envDefault:"info"`
	DisableAudit    bool     `env:"TRUCE_DISABLE_AUDIT"`
}

// adminHTTPEnabled defaults to on outside staging and production.
func (c envConfig) adminHTTPEnabled() bool {
	if c.EnableAdminHTTP != nil {
		return *c.EnableAdminHTTP
	}
	switch strings.ToLower(strings.TrimSpace(c.DeployEnv)) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		storeKind  = flag.String("store", "", "document store: sqlite|redis|file|memory (default: $TRUCE_STORE or sqlite)")
		noWatch    = flag.Bool("no_watch", false, "do not hot-reload tuning.yaml")
	)
	flag.Parse()

	var ecfg envConfig
	if err := env.Parse(&ecfg); err != nil {
		zap.NewExample().Fatal("parse env", zap.Error(err))
	}
	if s := strings.TrimSpace(*storeKind); s != "" {
		ecfg.Store = s
	}
	_ = os.MkdirAll(*dataDir, 0o755)

	logger, audit := buildLogger(*dataDir, ecfg)
	defer func() {
		_ = logger.Sync()
		if audit != nil {
			_ = audit.Close()
		}
	}()

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatal("load tuning", zap.String("path", tp), zap.Error(err))
		}
		logger.Warn("tuning not found; using defaults", zap.String("path", tp))
		tune = tuning.Defaults()
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := openStore(ctx, ecfg, *dataDir)
	if err != nil {
		logger.Fatal("open document store", zap.String("store", ecfg.Store), zap.Error(err))
	}
	defer store.Close()
	writer := docstore.NewWriter(store, logger)
	defer writer.Close()

	admins := parseAdmins(ecfg.Admins, logger)
	a, err := arena.New(arena.Config{
		Tuning: tune,
		Saver:  writer,
		Admins: admins,
		Log:    logger,
	})
	if err != nil {
		logger.Fatal("arena", zap.Error(err))
	}
	loadCtx, loadCancel := context.WithTimeout(ctx, 10*time.Second)
	err = a.Load(loadCtx, store)
	loadCancel()
	if err != nil {
		logger.Fatal("load state", zap.Error(err))
	}

	go func() {
		if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("arena stopped", zap.Error(err))
		}
	}()

	if !*noWatch {
		go func() {
			err := tuning.Watch(ctx, tp,
				func(t tuning.Tuning) { a.Retune(t) },
				func(err error) { logger.Warn("tuning reload failed", zap.String("path", tp), zap.Error(err)) })
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("tuning watch disabled", zap.Error(err))
			}
		}()
	}

	adminHTTP := ecfg.adminHTTPEnabled()
	if !adminHTTP {
		logger.Info("admin endpoints disabled (TRUCE_ENABLE_ADMIN_HTTP=false)")
	}
	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMux(a, logger, adminHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info("listening", zap.String("addr", *addr), zap.String("store", ecfg.Store),
		zap.Int("tick_rate_hz", tune.TickRateHz), zap.Int("admins", len(admins)))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("ListenAndServe", zap.Error(err))
	}
	<-a.Done()
	writer.Flush()
}

// buildLogger tees a console core on stdout with the compressed audit sink.
func buildLogger(dataDir string, ecfg envConfig) (*zap.Logger, *persistlog.AuditLogger) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(ecfg.LogLevel)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000000")
	console := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), level)
	if ecfg.DisableAudit {
		return zap.New(console).Named("server"), nil
	}
	audit := persistlog.NewAuditLogger(dataDir)
	return zap.New(zapcore.NewTee(console, audit.Core(zap.InfoLevel))).Named("server"), audit
}

func parseAdmins(raw []string, logger *zap.Logger) []actors.ID {
	var out []actors.ID
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			logger.Warn("ignoring bad admin id", zap.String("id", s))
			continue
		}
		out = append(out, id)
	}
	return out
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
