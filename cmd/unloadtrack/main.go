package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"unloadtrack/arrivals"
	"unloadtrack/config"
	"unloadtrack/engine"
	"unloadtrack/messaging"
	"unloadtrack/report"
	"unloadtrack/stockstate"
	"unloadtrack/store"
	"unloadtrack/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "unloadtrack.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("unloadtrack", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("unloadtrack: database open (%s)", cfg.Database.Driver)
	ensureAdmin(db)

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	var redisStore *stockstate.RedisStore
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("unloadtrack: redis not available (%v), running without cache", err)
	} else {
		log.Printf("unloadtrack: redis connected (%s)", cfg.Redis.Address)
		redisStore = stockstate.NewRedisStore(redisClient)
	}
	cancel()
	defer redisClient.Close()

	// Stock state manager
	stockMgr := stockstate.NewManager(db, redisStore)
	syncCtx, syncCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := stockMgr.SyncRedisFromSQL(syncCtx); err != nil {
		log.Printf("unloadtrack: stock cache sync failed: %v", err)
	}
	syncCancel()

	// Arrivals client
	arrivalsClient := arrivals.NewClient(cfg.Arrivals.BaseURL, cfg.Arrivals.Timeout)
	if cfg.Arrivals.BaseURL == "" {
		log.Printf("unloadtrack: arrivals service not configured, jobs come from the plant bus only")
	} else if ping, err := arrivalsClient.Ping(); err == nil {
		log.Printf("unloadtrack: arrivals service connected (%s %s)", ping.Product, ping.Version)
	} else {
		log.Printf("unloadtrack: arrivals service not available (%v)", err)
	}

	// Messaging client
	msgClient := messaging.NewClient(&cfg.Messaging)
	if err := msgClient.Connect(); err != nil {
		log.Printf("unloadtrack: messaging connect failed (%v)", err)
	} else {
		log.Printf("unloadtrack: messaging connected (%s)", cfg.Messaging.Backend)
	}
	defer msgClient.Close()

	// Report archive
	engCfg := engine.Config{
		AppConfig:      cfg,
		ConfigPath:     *configPath,
		DB:             db,
		ArrivalsClient: arrivalsClient,
		StockState:     stockMgr,
		MsgClient:      msgClient,
	}
	archiver, err := report.NewArchiver(cfg.Reports.Archive)
	switch {
	case err != nil:
		log.Printf("unloadtrack: report archive disabled: %v", err)
	case archiver != nil:
		engCfg.Archiver = archiver
		log.Printf("unloadtrack: archiving reports to %s/%s", cfg.Reports.Archive.Endpoint, cfg.Reports.Archive.Bucket)
	}

	// Engine
	eng := engine.New(engCfg)
	eng.Start()
	defer eng.Stop()

	// Messaging consumer (arrivals announced on the plant bus)
	consumer := messaging.NewConsumer(msgClient, cfg.Messaging.ArrivalsTopic, eng.Tracker())
	if err := consumer.Start(); err != nil {
		log.Printf("unloadtrack: consumer start failed: %v", err)
	}

	// Outbox drainer (line and stock events out to the plant bus)
	drainer := messaging.NewOutboxDrainer(db, msgClient, cfg.Messaging.OutboxDrainInterval)
	drainer.Start()
	defer drainer.Stop()

	// Web server
	handler, stopWeb := www.NewRouter(eng)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("unloadtrack: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("unloadtrack: ready")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("unloadtrack: shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("unloadtrack: stopped")
}

// ensureAdmin creates the first admin account on an empty database.
func ensureAdmin(db *store.DB) {
	n, err := db.CountOperators()
	if err != nil {
		log.Fatalf("count operators: %v", err)
	}
	if n > 0 {
		return
	}
	password := os.Getenv("UNLOADTRACK_ADMIN_PASSWORD")
	if password == "" {
		password = "admin"
		log.Printf("unloadtrack: WARNING: created admin account with the default password, change it")
	}
	if _, err := db.CreateOperator("admin", password, store.RoleAdmin); err != nil {
		log.Fatalf("create admin: %v", err)
	}
}
