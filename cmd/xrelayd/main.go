// Command xrelayd runs the message relay daemon: it loads the gateway
// configuration, registers the built-in adapters, wires the directional
// queues and drives the poll loop until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xlog/adapter/zerolog"

	"github.com/trickstertwo/xrelay"
	"github.com/trickstertwo/xrelay/adapter/natsbridge"
	"github.com/trickstertwo/xrelay/adapter/stub"
	"github.com/trickstertwo/xrelay/adapter/telegram"
	"github.com/trickstertwo/xrelay/queue/memqueue"
	"github.com/trickstertwo/xrelay/queue/redisqueue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", xrelay.DefaultConfigPath(), "path to configuration file")
	flag.Parse()

	// Optional .env file for secrets referenced by the config environment.
	_ = godotenv.Load()

	cfg, err := xrelay.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := zerolog.Use(zerolog.Config{
		MinLevel:          logLevel(cfg.Runtime.LogLevel),
		Console:           true,
		ConsoleTimeFormat: time.RFC3339,
	}).With(xlog.Str("app", cfg.Name))

	registry := xrelay.NewRegistry()
	for _, reg := range []struct {
		kind    xrelay.AdapterKind
		name    string
		factory xrelay.PortFactory
	}{
		{xrelay.KindSMS, stub.AdapterName, stub.Factory},
		{xrelay.KindIntegration, telegram.AdapterName, telegram.Factory},
		{xrelay.KindIntegration, natsbridge.AdapterName, natsbridge.Factory},
	} {
		if err := registry.Register(reg.kind, reg.name, reg.factory); err != nil {
			return fmt.Errorf("register %s/%s: %w", reg.kind, reg.name, err)
		}
	}

	smsQueue, err := buildQueue(cfg.Queues.SMSQueue, "sms")
	if err != nil {
		return err
	}
	integrationQueue, err := buildQueue(cfg.Queues.IntegrationQueue, "integration")
	if err != nil {
		return err
	}

	gateway := xrelay.NewGateway(cfg, registry, smsQueue, integrationQueue,
		xrelay.WithGatewayLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return gateway.Run(ctx)
}

// buildQueue constructs a queue from config. Redis queues verify
// connectivity up front so misconfiguration fails fast.
func buildQueue(qc xrelay.QueueConfig, direction string) (xrelay.Queue, error) {
	switch qc.Type {
	case "", "memory":
		return memqueue.New(qc.MaxSize), nil
	case "redis":
		key := qc.Key
		if key == "" {
			key = "xrelay:" + direction
		}
		q, err := redisqueue.New(redisqueue.Config{
			Addr:     qc.Addr,
			Password: qc.Password,
			DB:       qc.DB,
			Key:      key,
			MaxSize:  qc.MaxSize,
		})
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := q.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("redis queue %s: %w", direction, err)
		}
		return q, nil
	default:
		return nil, xrelay.ErrUnknownQueueType{Type: qc.Type}
	}
}

func logLevel(name string) xlog.Level {
	switch name {
	case "debug":
		return xlog.LevelDebug
	case "warn", "warning":
		return xlog.LevelWarn
	case "error":
		return xlog.LevelError
	default:
		return xlog.LevelInfo
	}
}
