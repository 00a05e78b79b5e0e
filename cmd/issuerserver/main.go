package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"vc/internal/issuerserver/apiv1"
	"vc/internal/issuerserver/httpserver"
	"vc/pkg/configuration"
	"vc/pkg/logger"
)

type service interface {
	Close(ctx context.Context) error
}

func main() {
	var wg sync.WaitGroup
	ctx := context.Background()

	services := make(map[string]service)

	cfg, err := configuration.New(ctx)
	if err != nil {
		panic(err)
	}

	log, err := logger.New("issuerserver", cfg.Common.LogPath, cfg.Common.Production)
	if err != nil {
		panic(err)
	}

	apiv1Client, err := apiv1.New(ctx, cfg, log.New("apiv1"))
	services["apiv1"] = apiv1Client
	if err != nil {
		panic(err)
	}

	httpService, err := httpserver.New(ctx, cfg, apiv1Client, log.New("httpserver"))
	services["httpserver"] = httpService
	if err != nil {
		panic(err)
	}

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)

	<-termChan

	mainLog := log.New("main")
	mainLog.Info("halting signal received")

	for name, svc := range services {
		if err := svc.Close(ctx); err != nil {
			mainLog.Trace("serviceName", name, "error", err)
		}
	}

	wg.Wait()

	mainLog.Info("stopped")
}
