package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"focusfriends/backend/internal/bus"
	"focusfriends/backend/internal/config"
	"focusfriends/backend/internal/dashboard"
	"focusfriends/backend/internal/db"
	"focusfriends/backend/internal/feed"
	"focusfriends/backend/internal/gateway"
	"focusfriends/backend/internal/handler"
	"focusfriends/backend/internal/logging"
	"focusfriends/backend/internal/presence"
	"focusfriends/backend/internal/repository"
	"focusfriends/backend/internal/retry"
	"focusfriends/backend/internal/router"
	"focusfriends/backend/internal/service"
)

const shutdownTimeout = 10 * time.Second

// Module composes the HTTP server and everything it depends on.
func Module(cfg config.Config) fx.Option {
	return fx.Module("server",
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideClock,
			provideDatabase,
			repository.NewUserRepository,
			repository.NewProfileRepository,
			repository.NewSessionRepository,
			repository.NewNudgeRepository,
			repository.NewPreferenceRepository,
			bus.New,
			presence.NewChannel,
			provideAuthService,
			provideFocusService,
			provideNudgeService,
			provideSocialService,
			provideGateway,
			provideEngine,
			provideHTTPServer,
		),
		fx.Invoke(registerBridge, registerLifecycle),
	)
}

func provideLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogLevel, cfg.LogFormat)
}

func provideClock() clockwork.Clock {
	return clockwork.NewRealClock()
}

func provideDatabase(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*sql.DB, error) {
	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	result, err := db.RunMigrations(database)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", cfg.DBPath))

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return database.Close()
		},
	})
	return database, nil
}

func retryPolicy(cfg config.Config) retry.Policy {
	return retry.Policy{
		Attempts:  cfg.Retry.Attempts,
		BaseDelay: cfg.Retry.BaseDelay,
		MaxDelay:  cfg.Retry.MaxDelay,
	}
}

func feedOptions(cfg config.Config, clock clockwork.Clock) feed.Options {
	return feed.Options{
		Window:     cfg.Feed.Window,
		FetchLimit: cfg.Feed.FetchLimit,
		Limit:      cfg.Feed.Limit,
		Clock:      clock,
	}
}

func provideAuthService(
	cfg config.Config,
	users *repository.UserRepository,
	profiles *repository.ProfileRepository,
	prefs *repository.PreferenceRepository,
) *service.AuthService {
	return service.NewAuthService(users, profiles, prefs, cfg.JWTSecret, cfg.TokenTTL, cfg.Timer.DefaultDuration)
}

func provideFocusService(
	lc fx.Lifecycle,
	cfg config.Config,
	clock clockwork.Clock,
	sessions *repository.SessionRepository,
	profiles *repository.ProfileRepository,
	prefs *repository.PreferenceRepository,
	events *bus.Bus,
	logger *zap.Logger,
) *service.FocusService {
	focus := service.NewFocusService(sessions, profiles, prefs, events, service.FocusOptions{
		Clock:           clock,
		TickInterval:    cfg.Timer.TickInterval,
		DefaultDuration: cfg.Timer.DefaultDuration,
		Retry:           retryPolicy(cfg),
		Logger:          logger,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := focus.Close(ctx); err != nil {
				logger.Warn("pending focus session writes abandoned", zap.Error(err))
			}
			return nil
		},
	})
	return focus
}

func provideNudgeService(
	cfg config.Config,
	clock clockwork.Clock,
	nudges *repository.NudgeRepository,
	profiles *repository.ProfileRepository,
	events *bus.Bus,
) *service.NudgeService {
	return service.NewNudgeService(nudges, profiles, events, clock, cfg.Nudge.Interval, cfg.Nudge.Burst)
}

func provideSocialService(
	cfg config.Config,
	clock clockwork.Clock,
	sessions *repository.SessionRepository,
	profiles *repository.ProfileRepository,
	nudges *repository.NudgeRepository,
) *service.SocialService {
	return service.NewSocialService(sessions, profiles, nudges, service.SocialOptions{
		Clock:     clock,
		Feed:      feedOptions(cfg, clock),
		WeekStart: cfg.Leaderboard.WeekStart,
		Location:  cfg.Leaderboard.Location,
	})
}

func provideGateway(
	cfg config.Config,
	clock clockwork.Clock,
	channel *presence.Channel,
	events *bus.Bus,
	profiles *repository.ProfileRepository,
	social *service.SocialService,
	focus *service.FocusService,
	logger *zap.Logger,
) *gateway.ConnectionManager {
	deps := dashboard.Deps{
		Channel: channel,
		Bus:     events,
		Roster:  profiles,
		Feed:    social.FeedSource(),
		Clock:   clock,
		Logger:  logger.Named("dashboard"),
	}
	base := dashboard.Options{
		FeedOptions:     feedOptions(cfg, clock),
		ToastTTL:        cfg.Toast.TTL,
		ToastLimit:      cfg.Toast.Limit,
		RefreshInterval: cfg.Presence.RefreshInterval,
	}
	config := gateway.DefaultConfig()
	config.CheckOrigin = gateway.AllowOrigins(cfg.CORSOrigins)
	return gateway.NewConnectionManager(
		config,
		gateway.DashboardOpener(deps, base, profiles, focus),
		logger,
	)
}

func provideEngine(
	cfg config.Config,
	auth *service.AuthService,
	focus *service.FocusService,
	nudges *service.NudgeService,
	social *service.SocialService,
	manager *gateway.ConnectionManager,
	logger *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	return router.New(auth, router.Handlers{
		Auth:    handler.NewAuthHandler(auth),
		Timer:   handler.NewTimerHandler(focus),
		Social:  handler.NewSocialHandler(social, nudges),
		Gateway: manager,
	}, cfg.CORSOrigins, logger)
}

func provideHTTPServer(cfg config.Config, engine *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// registerBridge relays bus events through NATS when NATS_URL is set.
func registerBridge(lc fx.Lifecycle, cfg config.Config, events *bus.Bus, logger *zap.Logger) error {
	if cfg.NATSURL == "" {
		logger.Info("nats bridge disabled")
		return nil
	}
	bridge, err := bus.NewBridge(cfg.NATSURL, events, logger.Named("nats"))
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return bridge.Start()
		},
		OnStop: func(context.Context) error {
			bridge.Close()
			return nil
		},
	})
	return nil
}

func registerLifecycle(lc fx.Lifecycle, srv *http.Server, manager *gateway.ConnectionManager, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Info("backend listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			if err := manager.Shutdown(ctx); err != nil {
				logger.Warn("websocket shutdown", zap.Error(err))
			}
			logger.Info("server stopped")
			return nil
		},
	})
}
