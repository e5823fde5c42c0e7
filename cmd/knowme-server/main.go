// knowme-server — HTTP/WebSocket сервер чата с инструментами.
//
// Загружает config.yaml, собирает компоненты через pkg/app
// и обслуживает маршруты internal/httpapi до SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/ilkoid/knowme/internal/httpapi"
	"github.com/ilkoid/knowme/pkg/app"
	"github.com/ilkoid/knowme/pkg/utils"
)

// CLI flags
var (
	flagConfig = flag.String("config", "", "Path to config.yaml (default: auto-detect)")
	flagAddr   = flag.String("addr", "", "Listen address (default: app.listen_addr)")
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	// 1. Конфигурация
	cfg, cfgPath, err := app.InitializeConfig(&app.DefaultConfigPathFinder{ConfigFlag: *flagConfig})
	if err != nil {
		return err
	}

	// 2. Логгер
	if err := utils.InitLogger(cfg.App.LogFile, cfg.App.Debug); err != nil {
		log.Printf("Warning: failed to init logger: %v", err)
	}
	utils.Info("knowme-server starting", "config", cfgPath)

	// 3. Компоненты
	ctx, shutdown := utils.SetupGracefulShutdownWithContext()
	defer shutdown()

	components, err := app.Initialize(ctx, cfg)
	if err != nil {
		utils.Error("Components initialization failed", "error", err)
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer components.Close()

	// 4. HTTP сервер
	addr := cfg.App.ListenAddr
	if *flagAddr != "" {
		addr = *flagAddr
	}
	server := httpapi.NewServer(addr, components.Orchestrator, components.Documents,
		httpapi.HealthCheck{Name: "cache", Ping: components.Cache.Ping},
		httpapi.HealthCheck{Name: "vector_index", Ping: components.Index.Ping},
	)

	errCh := make(chan error, 1)
	go func() {
		utils.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		utils.Error("HTTP server shutdown failed", "error", err)
		return err
	}

	utils.Info("knowme-server stopped")
	return nil
}
