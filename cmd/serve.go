/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/valpere/codeconvert/internal/orchestrator"
	"github.com/valpere/codeconvert/internal/server"
	"github.com/valpere/codeconvert/pkg/logger"
)

var (
	serveAddr    string
	serveNoCache bool
	serveDBPath  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the /api/translate proxy",
	Long: `Serve POST /api/translate. Requests are validated, answered from the
translation memory when possible, and otherwise streamed from the first
configured provider that accepts them.

Providers are tried in the order they appear in the config file. Without a
providers section, OpenAI and OpenRouter are used when OPENAI_API_KEY or
OPENROUTER_API_KEY is set, followed by a local Ollama.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}

		providers, err := buildProviders(cfg.Providers)
		if err != nil {
			return err
		}

		orch := orchestrator.New(providers, cfg.Orchestrator)

		checkCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		for _, p := range orch.Providers() {
			if err := p.IsAvailable(checkCtx); err != nil {
				logger.Warnf("provider %s is not available: %v", p.Name(), err)
			} else {
				logger.Infof("provider %s ready", p.Name())
			}
		}
		cancel()

		if cfg.Log.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}

		var srv *server.Server
		if cfg.Cache.Enabled && !serveNoCache {
			db, err := openStore(serveDBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			srv = server.New(cfg, orch, db)
		} else {
			srv = server.New(cfg, orch, nil)
		}

		httpServer := &http.Server{
			Addr:           cfg.Server.Addr,
			Handler:        srv.Handler(),
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Infof("listening on %s", cfg.Server.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case err, ok := <-errCh:
			if ok {
				return err
			}
			return nil
		case <-quit:
		}

		logger.Info("shutting down")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("graceful shutdown failed: %v", err)
			return httpServer.Close()
		}
		logger.Info("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":3001", "Listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveNoCache, "no-cache", false, "Disable the translation memory")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "Database path (overrides cache.db_path)")
}
