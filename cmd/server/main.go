package main

import (
    "log"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"

    "github.com/inkstream/inkstream-server/internal/config"
    "github.com/inkstream/inkstream-server/internal/database"
    "github.com/inkstream/inkstream-server/internal/engine"
    "github.com/inkstream/inkstream-server/internal/handler"
    appmw "github.com/inkstream/inkstream-server/internal/middleware"
    "github.com/inkstream/inkstream-server/internal/queue"
    "github.com/inkstream/inkstream-server/internal/repository"
    "github.com/inkstream/inkstream-server/internal/router"
    queue_publisher "github.com/inkstream/inkstream-server/internal/service"
)

func main() {
    // .env is optional; real deployments set env vars directly.
    _ = godotenv.Load()

    cfg := config.Load()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database: %v", err)
    }
    defer db.Close()

    // Repositories
    users := repository.NewUserRepo(db)
    tokens := repository.NewTokenRepo(db)
    attempts := repository.NewAttemptRepo(db)
    trials := repository.NewTrialRepo(db)
    loans := repository.NewLoanRepo(db)
    devices := repository.NewDeviceRepo(db)

    // Engine components
    limiter := engine.NewRateLimiter(attempts)
    guard := engine.NewTrialGuard(db, trials, users, attempts)
    loanMgr := engine.NewLoanManager(db, users, loans, cfg.MaxLoans)
    registry := engine.NewDeviceRegistry(db, users, devices, cfg.MaxDevices)
    registry.PublishDeactivated = queue_publisher.PublishDeviceDeactivated

    // Handlers
    authH := handler.NewAuthHandler(cfg, users, tokens, limiter)
    subH := handler.NewSubscriptionHandler(users, guard)
    subH.PublishTrialStarted = queue_publisher.PublishTrialStarted
    loanH := handler.NewLoanHandler(loanMgr)
    devH := handler.NewDeviceHandler(registry)

    e := echo.New()

    // Transport-level token bucket.  A missing Redis disables it; the
    // signup limits in the engine keep working from MySQL regardless.
    rlCfg := config.LoadRateLimitConfig()
    rdb := config.NewRedisClient()
    if rdb == nil && rlCfg.Enabled {
        log.Printf("redis unavailable, request throttling disabled")
    }
    e.Use(appmw.NewTokenBucket(rlCfg, rdb))

    router.RegisterRoutes(e)
    router.RegisterAuth(e, authH)
    router.RegisterEntitlements(e, cfg.JWTSecret, registry, authH, subH, loanH, devH)

    // License issuer stand-in: consumes device.deactivated and records
    // the revocations.
    go func() {
        if err := queue.StartLicenseRevocationConsumer(); err != nil {
            log.Printf("license consumer stopped: %v", err)
        }
    }()

    addr := ":" + cfg.Port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env)
    if err := e.Start(addr); err != nil {
        log.Fatal(err)
    }
}
