package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IcedVodka/robot2"
	"github.com/IcedVodka/robot2/internal/creds"
	"github.com/IcedVodka/robot2/server"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/robot/client"
	"go.viam.com/utils/rpc"
)

func main() {
	credsPath := flag.String("creds", "", "path to robot credentials JSON file")
	configPath := flag.String("config", "", "path to YAML config overlay (optional)")
	flag.Parse()

	logger := logging.NewDebugLogger("robot2")

	if *credsPath == "" {
		logger.Fatal("-creds flag is required")
	}
	robotCreds, err := creds.Load(*credsPath)
	if err != nil {
		logger.Fatal(err)
	}

	cfg, err := robot2.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal(err)
	}
	cfg.Vision.APIKey = robotCreds.LLMAPIKey
	if robotCreds.LLMBaseURL != "" {
		cfg.Vision.BaseURL = robotCreds.LLMBaseURL
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	machine, err := client.New(
		ctx,
		robotCreds.Address,
		logger,
		client.WithDialOptions(rpc.WithEntityCredentials(
			robotCreds.EntityID,
			rpc.Credentials{
				Type:    rpc.CredentialsTypeAPIKey,
				Payload: robotCreds.APIKey,
			})),
	)
	if err != nil {
		logger.Fatal(err)
	}
	defer machine.Close(context.Background())

	logger.Info("Connected to robot")
	logger.Info("Resources:", machine.ResourceNames())

	r, err := robot2.NewRobot(ctx, machine, cfg, logger)
	if err != nil {
		logger.Fatal(err)
	}
	if err := r.StartStreams(ctx); err != nil {
		logger.Fatal(err)
	}
	defer r.StopStreams()

	api := server.NewServer(r, cfg.Server.MedicinesFile, logger)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: api.ServeMux()}

	go func() {
		<-ctx.Done()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Warnf("HTTP shutdown: %v", err)
		}
	}()

	logger.Infof("Task API listening on %s", cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal(err)
	}
}
