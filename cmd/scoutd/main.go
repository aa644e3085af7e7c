package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/scoutd/scout/internal/agent"
	"github.com/scoutd/scout/internal/config"
	"github.com/scoutd/scout/internal/logger"
	"github.com/scoutd/scout/internal/server"
	"github.com/scoutd/scout/internal/session"
	"github.com/scoutd/scout/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	st, err := store.Open(cfg.Storage)
	if err != nil {
		logger.L.Error("failed to open conversation store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	runtime := agent.NewRuntime(agent.NewClient(cfg.LLM), cfg.LLM)
	coordinator := session.New(st, runtime)
	mux := server.New(st, coordinator)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.L.Info("starting server", "address", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.L.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
