/*
main.go - Application entry point

STARTUP SEQUENCE:
  1. Parse flags, load configuration (viper; env overrides via
     STOCK_ENGINE_*)
  2. Open the SQLite store and wire the engine services
  3. Configure the HTTP router
  4. Serve with graceful shutdown on SIGINT/SIGTERM

FLAGS:
  -config  Optional config file path (default: configs/config.yaml)
  -port    Overrides server.port
  -db      Overrides database.path; ":memory:" for ephemeral runs
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/texfab/stock-engine/adjustment"
	"github.com/texfab/stock-engine/api"
	"github.com/texfab/stock-engine/billing"
	"github.com/texfab/stock-engine/config"
	"github.com/texfab/stock-engine/jobwork"
	"github.com/texfab/stock-engine/ledger"
	"github.com/texfab/stock-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "config file path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer store.Close()

	ledgerStore := ledger.New(store, store)
	workflow := adjustment.NewWorkflow(store, store, ledgerStore)
	jobWork := jobwork.New(store, store)
	biller := billing.NewAggregator(jobWork, store, store)

	handler := api.NewHandler(ledgerStore, workflow, jobWork, biller, log)
	router := api.NewRouter(handler, cfg.Server.CorsAllowedOrigins)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("stock engine listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}
