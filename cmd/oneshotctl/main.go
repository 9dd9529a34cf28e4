// Package main is the entry point for oneshotctl, a small command-line
// tool for exercising the oneshot channel against real transports (an
// MQTT broker, a WebSocket RPC endpoint).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brindlewood/oneshot"
	"github.com/brindlewood/oneshot/internal/buildinfo"
	"github.com/brindlewood/oneshot/internal/config"
	"github.com/brindlewood/oneshot/internal/mqtt"
	"github.com/brindlewood/oneshot/internal/wsrpc"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() == 0 {
		printUsage()
		return
	}

	switch flag.Arg(0) {
	case "demo":
		runDemo()
	case "mqtt-ready":
		runMQTTReady(logger, *configPath)
	case "wsrpc-call":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: oneshotctl wsrpc-call <json-message>")
			os.Exit(1)
		}
		runWSRPCCall(logger, *configPath, flag.Arg(1))
	case "version":
		fmt.Println(buildinfo.String())
		for k, v := range buildinfo.BuildInfo() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("oneshotctl - exercise the oneshot channel against real transports")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  demo        Run an in-process send/receive demo")
	fmt.Println("  mqtt-ready  Connect to the configured MQTT broker and wait for readiness")
	fmt.Println("  wsrpc-call  Dial the configured WebSocket endpoint and issue one call")
	fmt.Println("  version     Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

// runDemo sends a value from one goroutine and receives it from
// another, demonstrating the basic Sender/Receiver handoff.
func runDemo() {
	sender, receiver := oneshot.Channel[string]()

	go func() {
		time.Sleep(50 * time.Millisecond)
		if err := sender.Send("hello from the sender goroutine"); err != nil {
			fmt.Fprintln(os.Stderr, "send:", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, err := receiver.RecvContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "recv:", err)
		os.Exit(1)
	}
	fmt.Println(msg)
}

func loadConfig(configPath string) *config.Config {
	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	return cfg
}

// runMQTTReady connects to the broker configured in mqtt.broker and
// blocks until the first connection is established, or until
// interrupted.
func runMQTTReady(logger *slog.Logger, configPath string) {
	cfg := loadConfig(configPath)
	if !cfg.MQTT.Configured() {
		fmt.Fprintln(os.Stderr, "mqtt.broker is not set in the config file")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var instanceID string
	if dataDir, err := os.UserCacheDir(); err == nil {
		dataDir = filepath.Join(dataDir, "oneshotctl")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			logger.Warn("could not create data dir for instance ID", "error", err)
		} else if id, err := mqtt.LoadOrCreateInstanceID(dataDir); err != nil {
			logger.Warn("could not load/create mqtt instance ID", "error", err)
		} else {
			instanceID = id
		}
	}

	pub := mqtt.New(cfg.MQTT, logger)
	if instanceID != "" {
		pub.SetInstanceID(instanceID)
	}
	go func() {
		if err := pub.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("mqtt start", "error", err)
		}
	}()

	readyCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := pub.Ready(readyCtx); err != nil {
		fmt.Fprintln(os.Stderr, "waiting for broker connection:", err)
		os.Exit(1)
	}
	fmt.Println("connected to", cfg.MQTT.Broker)
}

// runWSRPCCall dials the WebSocket endpoint configured in wsrpc.url,
// sends msg as a request, and prints the reply.
func runWSRPCCall(logger *slog.Logger, configPath, msg string) {
	cfg := loadConfig(configPath)
	if !cfg.WSRPC.Configured() {
		fmt.Fprintln(os.Stderr, "wsrpc.url is not set in the config file")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.WSRPC.URL, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer conn.Close()

	client := wsrpc.NewClient(conn, 16, logger)
	defer client.Close()
	go client.ReadLoop()

	var payload map[string]any
	if err := json.Unmarshal([]byte(msg), &payload); err != nil {
		fmt.Fprintln(os.Stderr, "parse message:", err)
		os.Exit(1)
	}

	result, err := client.Call(ctx, payload)
	if err != nil {
		fmt.Fprintln(os.Stderr, "call:", err)
		os.Exit(1)
	}
	fmt.Println(string(result))
}
