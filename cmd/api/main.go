package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"transconecta.io/internal/assignment"
	"transconecta.io/internal/config"
	"transconecta.io/internal/fatigue"
	"transconecta.io/internal/fleet"
	"transconecta.io/internal/hours"
	"transconecta.io/internal/httpapi"
	"transconecta.io/internal/obs"
	"transconecta.io/internal/otp"
	"transconecta.io/internal/permission"
	"transconecta.io/internal/registry"
	"transconecta.io/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		fleetStore fleet.Store
		permStore  permission.Store
		ready      httpapi.ReadyProbe
		pgStore    *pg.Store
	)
	if cfg.PGDSN != "" {
		pgStore, err = pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		fleetStore, permStore = pgStore, pgStore
		ready = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		obs.Warn("TRANSCONECTA_PG_DSN not set, using in-memory stores", nil)
		fleetStore, permStore = fleet.NewInMemory(), permission.NewInMemory()
	}

	reg, err := registry.New(fleetStore)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}
	perms, err := permission.NewService(permStore, permission.WithRoleSource(reg))
	if err != nil {
		log.Fatalf("permissions: %v", err)
	}
	if err := bootstrap(ctx, cfg, reg, perms, pgStore == nil); err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	engine, err := fatigue.New(fleetStore, fatigue.WithThreshold(cfg.FatigueThreshold))
	if err != nil {
		log.Fatalf("fatigue engine: %v", err)
	}
	ledger, err := hours.New(fleetStore, hours.WithEvaluator(engine))
	if err != nil {
		log.Fatalf("hours ledger: %v", err)
	}
	machine, err := assignment.New(fleetStore, engine)
	if err != nil {
		log.Fatalf("assignment machine: %v", err)
	}

	codes, closeCodes := otpStore(ctx, cfg)
	defer closeCodes()
	var mailer otp.Mailer = otp.LogMailer{}
	if cfg.SMTP.Enabled() {
		mailer = otp.NewSMTPMailer(otp.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}
	recovery, err := otp.NewService(codes, reg, mailer)
	if err != nil {
		log.Fatalf("recovery: %v", err)
	}

	api, err := httpapi.New(httpapi.Deps{
		Registry:    reg,
		Permissions: perms,
		Hours:       ledger,
		Fatigue:     engine,
		Assignments: machine,
		Recovery:    recovery,
		Ready:       ready,
		Version:     version,
		TokenTTL:    cfg.TokenTTL,
		RateBurst:   cfg.RateLimitBurst,
		RatePerSec:  cfg.RateLimitPerSec,
		CORSOrigins: cfg.CORSOrigins,
	})
	if err != nil {
		log.Fatalf("http api: %v", err)
	}
	go api.SweepRateLimits(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		obs.Info("http listening", map[string]any{"addr": srv.Addr, "version": version})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcSrv, httpapi.NewGRPCServer(ready, version))
		go func() {
			obs.Info("grpc listening", map[string]any{"addr": cfg.GRPCAddr})
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				obs.Error("grpc serve failed", map[string]any{"error": err.Error()})
			}
		}()
	}

	<-ctx.Done()
	obs.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if pgStore != nil {
		_ = pgStore.Close()
	}
	obs.Info("stopped", nil)
}

// bootstrap makes sure the built-in roles exist, seeds the permission matrix
// when it lives in memory, and creates the configured administrator.
func bootstrap(ctx context.Context, cfg config.Config, reg *registry.Registry, perms *permission.Service, seedPermissions bool) error {
	if err := reg.EnsureRoles(ctx, permission.RoleAdmin, permission.RoleCoordinator, permission.RoleHSEQ); err != nil {
		return err
	}
	if seedPermissions {
		if _, err := perms.Reset(ctx); err != nil {
			return err
		}
	}
	if !cfg.Bootstrap.Enabled() {
		return nil
	}
	u, created, err := reg.EnsureAdmin(ctx, cfg.Bootstrap.Name, cfg.Bootstrap.Email, cfg.Bootstrap.Password, permission.RoleAdmin)
	if err != nil {
		return err
	}
	if created {
		obs.Info("bootstrap administrator created", map[string]any{"user_id": u.ID, "email": otp.MaskEmail(u.Email)})
	}
	return nil
}

// otpStore picks Redis when configured, otherwise an in-process store with
// its janitor bound to ctx.
func otpStore(ctx context.Context, cfg config.Config) (otp.Store, func()) {
	if cfg.RedisAddr == "" {
		mem := otp.NewMemory()
		go mem.Run(ctx, otp.SweepInterval)
		return mem, func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}
	return otp.NewRedis(rdb, "transconecta:"), func() { _ = rdb.Close() }
}
