package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"cafeops/backend/internal/cache"
	"cafeops/backend/internal/clock"
	"cafeops/backend/internal/config"
	"cafeops/backend/internal/httpapi"
	"cafeops/backend/internal/scheduler"
	"cafeops/backend/internal/service"
	"cafeops/backend/internal/store"
	"cafeops/backend/internal/store/memory"
	pgstore "cafeops/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("postgres migration failed: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	jobLock := cache.JobLock(cache.NewMemoryJobLock())
	if cfg.RedisAddr != "" {
		redisLock := cache.NewRedisJobLock(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisLock.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using in-process job lock", err)
		} else {
			jobLock = redisLock
			closers = append(closers, redisLock.Close)
			log.Println("job lock: redis")
		}
	} else {
		log.Println("job lock: in-process")
	}

	svc := service.New(repo, clock.Real{}, policyFromConfig(cfg))
	if err := svc.BootstrapAdmin(ctx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}

	jobs := scheduler.New(clock.Real{}, jobLock)
	registerJobs(jobs, svc, cfg)

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, jobs, cfg.AllowedOrigin)

	jobsCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	if cfg.SchedulerEnabled {
		jobs.Start(jobsCtx)
		log.Printf("scheduler started: %v", jobs.Names())
	} else {
		log.Println("scheduler disabled")
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("cafeops backend listening on %s (tz %s)", cfg.Address(), cfg.Location)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	stopJobs()
	jobs.Wait()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func policyFromConfig(cfg config.Config) service.Policy {
	return service.Policy{
		Location:             cfg.Location,
		LateAfter:            cfg.LateAfter,
		EndOfDay:             cfg.EndOfDay,
		StandardWorkHours:    cfg.StandardWorkHours,
		HourlyRate:           cfg.HourlyRate,
		OvertimeMultiplier:   cfg.OvertimeMultiplier,
		StandardWorkDays:     cfg.StandardWorkDays,
		ReportProrationDays:  cfg.ReportProrationDays,
		OrderAutoCancelAfter: time.Duration(cfg.OrderAutoCancelMinutes) * time.Minute,
	}
}

func registerJobs(jobs *scheduler.Scheduler, svc *service.Service, cfg config.Config) {
	jobs.Register(service.JobMarkAbsent, scheduler.Daily(cfg.AbsenceMarkAt, cfg.Location), svc.MarkAbsentEmployees)
	if cfg.EarlyAbsenceEnabled {
		jobs.Register(service.JobMarkAbsentAfterShift, scheduler.Daily(cfg.EarlyAbsenceAt, cfg.Location), svc.MarkAbsentAfterShift)
	}
	jobs.Register(service.JobAutoCheckout, scheduler.Daily(cfg.AutoCheckoutAt, cfg.Location), svc.AutoCheckoutEmployees)
	jobs.Register(service.JobAutoCancelOrders, scheduler.Every(time.Duration(cfg.OrderAutoCancelIntervalSeconds)*time.Second), svc.AutoCancelExpiredOrders)
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.BootstrapAdminUsername != "" && len(cfg.BootstrapAdminPassword) < 8 {
		return fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD must be at least 8 characters when BOOTSTRAP_ADMIN_USERNAME is set")
	}
	return nil
}
