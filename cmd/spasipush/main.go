package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/oliverisaac/goli"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spasibg/spasi-push/lib/broadcast"
	"github.com/spasibg/spasi-push/lib/flags"
	"github.com/spasibg/spasi-push/lib/pushsdk"
	"github.com/spasibg/spasi-push/lib/pushstate"
	"github.com/spasibg/spasi-push/lib/subscribers"
	"github.com/spasibg/spasi-push/types"
)

func init() {
	goli.InitLogrus(logrus.InfoLevel)
}

const (
	sweepInterval = 5 * time.Minute
	managerIdle   = 30 * time.Minute
	pushQueue     = 16
)

func main() {
	err := run()
	if err != nil {
		logrus.Fatal(err)
	}
}

func run() error {
	err := godotenv.Load(".env")
	if err != nil {
		logrus.Debug(errors.Wrap(err, "Failed to load .env"))
	}

	cfg, err := types.ConfigFromEnv()
	if err != nil {
		return errors.Wrap(err, "Loading config from env")
	}
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := subscribers.Open(ctx, cfg.DatabaseURL, cfg.DBPath)
	if err != nil {
		return errors.Wrap(err, "failed to connect database")
	}
	defer store.Close()

	var flagStore flags.Store = flags.NewMemoryStore()
	var regs pushsdk.Registrations = pushsdk.NewMemoryRegistrations()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "connecting to redis")
		}
		flagStore = flags.NewRedisStore(rdb)
		regs = pushsdk.NewRedisRegistrations(rdb)
		logrus.Infof("Using redis at %s for browser flags", cfg.RedisAddr)
	}

	srv := newServer(cfg, store, flagStore, regs)
	defer srv.registry.Close()

	go srv.worker.Run(ctx, func(p broadcast.Push, r broadcast.Report, err error) {
		logrus.WithFields(logrus.Fields{
			"title":   p.Title,
			"sent":    r.Sent,
			"gone":    r.Gone,
			"failed":  r.Failed,
			"skipped": r.Skipped,
		}).Info("Broadcast finished")
	})

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := srv.registry.Sweep(managerIdle); n > 0 {
					logrus.Debugf("Evicted %d idle installations", n)
				}
			}
		}
	}()

	e := srv.echo(sessions.NewCookieStore(cfg.CookieSecret))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logrus.Error(errors.Wrap(err, "shutting down"))
		}
	}()

	err = e.Start(cfg.Listen)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type server struct {
	cfg      types.Config
	store    subscribers.Store
	flags    flags.Store
	hub      *pushstate.Hub
	provider *pushsdk.Provider
	registry *pushstate.Registry
	dialog   pushstate.Dialog
	worker   *broadcast.Worker
}

func newServer(cfg types.Config, store subscribers.Store, flagStore flags.Store, regs pushsdk.Registrations) *server {
	s := &server{
		cfg:    cfg,
		store:  store,
		flags:  flagStore,
		hub:    pushstate.NewHub(),
		dialog: pushstate.Dialog{Flags: flagStore, Delay: cfg.DialogDelay},
	}

	keys := pushsdk.VAPID{
		PublicKey:  cfg.VapidPublicKey,
		PrivateKey: cfg.VapidPrivateKey,
		Subscriber: cfg.VapidSubscriber,
	}

	if cfg.Dev {
		logrus.Infof("%s is a development host, using the push simulator", cfg.Hostname)
		s.provider = pushsdk.NewSimulatorProvider(flagStore)
	} else {
		s.provider = pushsdk.NewWebPushProvider(keys, regs, s.hub.Prompt)
	}

	s.registry = pushstate.NewRegistry(func(installation string) *pushstate.Manager {
		return pushstate.NewManager(pushstate.Options{
			Installation:  installation,
			Dev:           s.provider.Development(),
			SDK:           s.provider.For(installation),
			Flags:         flagStore,
			Persister:     store,
			Hub:           s.hub,
			InitTimeout:   cfg.InitTimeout,
			PromptTimeout: cfg.PromptTimeout,
			RecheckDelay:  cfg.RecheckDelay,
			PromptReachable: func(installation string) bool {
				return s.hub.Watchers(installation) > 0
			},
		})
	}, s.hub, s.provider.Release)

	sender := broadcast.NewSender(store, keys, cfg.Hostname)
	s.worker = broadcast.NewWorker(sender, pushQueue)
	return s
}

func (s *server) echo(cookies sessions.Store) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	origErrHandler := e.HTTPErrorHandler
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		logrus.Error(err)
		origErrHandler(err, c)
	}

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		Skipper:           middleware.DefaultSkipper,
		StackSize:         4 << 10, // 4 KB
		DisableStackAll:   false,
		DisablePrintStack: false,
		LogLevel:          log.ERROR,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logrus.Error(errors.Wrap(err, "recovered panic:"))
			for _, l := range strings.Split(string(stack), "\n") {
				logrus.Errorf("stack: %s", strings.ReplaceAll(l, "\t", "  "))
			}
			return nil
		},
		DisableErrorHandler: false,
	}))

	e.Use(middleware.Secure())

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}\n",
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/healthz" || c.Request().URL.Path == "/metrics"
		},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Browser
	push := e.Group("/push", session.Middleware(cookies), InstallationMiddleware())
	push.GET("/vapid", s.vapidKey())
	push.GET("/state", s.pushState())
	push.POST("/subscribe", s.subscribe())
	push.POST("/unsubscribe", s.unsubscribe())
	push.POST("/prompt", s.answerPrompt())
	push.GET("/events", s.events())
	push.POST("/dialog/shown", s.dialogShown())

	// Admin
	admin := AdminMiddleware(s.cfg.AdminTokenHash)
	e.POST("/push", s.pushNotification(), admin)
	e.GET("/admin/subscribers", s.listSubscribers(), admin)
	e.DELETE("/admin/subscribers/:token", s.deleteSubscriber(), admin)

	return e
}
