// Command ozctl is an interactive operator console for an OZ Optics
// DD-100-MC attenuator controller, reached over TCP (serial device
// server) or a native serial port.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/COO-Utilities/ozoptics/attenuator"
)

func main() {
	flag.String("addr", "127.0.0.1:10001", "TCP address of the serial device server")
	flag.String("serial-port", "", "Native serial port (takes precedence over -addr)")
	flag.Int("baud-rate", 9600, "Baud rate for native serial communication")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	var dialer attenuator.Dialer
	if config.SerialPort != "" {
		dialer = attenuator.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}
	} else {
		dialer = attenuator.TCPDialer{Addr: config.Addr}
	}

	controllerConfig, err := attenuator.NewConfigBuilder().
		WithDialer(dialer).
		WithLogger(logger.With("component", "attenuator")).
		Build()
	if err != nil {
		logger.Error("Failed to create controller config", "error", err)
		os.Exit(1)
	}

	controller, err := attenuator.New(controllerConfig)
	if err != nil {
		logger.Error("Failed to create controller", "error", err)
		os.Exit(1)
	}

	if err := controller.Connect(context.Background()); err != nil {
		logger.Error("Failed to connect to controller", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := controller.Disconnect(); err != nil {
			logger.Error("Failed to disconnect controller", "error", err)
		}
	}()

	if err := runShell(controller, logger.With("component", "shell")); err != nil {
		logger.Error("Shell terminated", "error", err)
		os.Exit(1)
	}
}
