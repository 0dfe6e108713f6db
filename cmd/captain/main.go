package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hugodecasta/captain/internal/captain"
	"github.com/hugodecasta/captain/internal/config"
	"github.com/hugodecasta/captain/internal/discovery"
	"github.com/hugodecasta/captain/internal/httpapi"
	"github.com/hugodecasta/captain/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "config/captain.yaml", "path to captain config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	state, err := captain.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize state: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := scheduler.New(state)
	go loop.Run(ctx, cfg.TickInterval)

	server := httpapi.NewServer(state)
	httpServer := &http.Server{Addr: cfg.Addr, Handler: server.Routes()}

	host, port := splitAddr(cfg.Addr)
	if err := discovery.Write(cfg.DataDir, host, port, time.Now().Unix()); err != nil {
		log.Printf("discovery: write serve file: %v", err)
	}
	defer discovery.Remove(cfg.DataDir)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Captain listening on %s\n", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("listen: %v", err)
	}
}

func splitAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "0.0.0.0", 8080
	}
	if host == "" {
		host = "0.0.0.0"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = 8080
	}
	return host, port
}
