package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"wordpress-plugin-generator/config"
	"wordpress-plugin-generator/controllers"
	"wordpress-plugin-generator/server"
	"wordpress-plugin-generator/services"
	"wordpress-plugin-generator/utils"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	utils.InitLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	rest := services.NewRESTClient(nil)
	dialer := services.NewDialer(cfg.Timeouts.Connect(), cfg.SSH.KnownHostsPath)
	if cfg.SSH.KnownHostsPath == "" {
		utils.LogWarn("No known_hosts file configured, SFTP host keys are not verified")
	}
	activity := services.NewActivityLog(cfg.Storage.ActivitiesFile, cfg.Storage.MaxActivities)

	deployer := services.NewDeployer(rest, dialer, cfg.Timeouts, cfg.Deploy.SettleDelay(), services.WithActivity(activity))
	verifier := services.NewVerifier(rest, dialer, cfg.Timeouts.Verify())
	logs := services.NewDebugLogRetriever(rest, dialer, cfg.Timeouts.DebugLog())

	var generator controllers.CodeGenerator
	if g, err := services.NewGenerator(cfg.LLM); err != nil {
		utils.LogWarn("Code generation disabled", "error", err)
	} else {
		generator = g
	}

	handler := controllers.NewHandler(cfg.Auth, deployer, verifier, logs, generator, activity)
	router := server.NewRouter(cfg.CORS, handler)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		utils.LogInfo("Server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.LogError("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.LogInfo("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		utils.LogError("Server shutdown failed", "error", err)
	}
}
