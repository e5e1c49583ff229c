package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ergochat/readline"

	"github.com/COO-Utilities/ozoptics/attenuator"
)

// runShell reads controller commands from the operator and forwards them
// as custom commands, bypassing the mnemonic legality table. An empty
// line, Ctrl-D, or "quit" ends the session.
func runShell(controller *attenuator.Controller, logger *slog.Logger) error {
	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt:                 "dd100mc> ",
		HistoryLimit:           200,
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		return fmt.Errorf("initialize line editor: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				return nil
			}
			return err
		}

		cmd := strings.TrimSpace(line)
		if cmd == "" || strings.EqualFold(cmd, "quit") {
			return nil
		}
		rl.SaveToHistory(cmd)

		reading, err := controller.Raw(context.Background(), cmd)
		if err != nil {
			var devErr *attenuator.DeviceError
			switch {
			case errors.As(err, &devErr):
				fmt.Printf("device fault: %s\n", devErr.Message)
			case errors.Is(err, attenuator.ErrTimeout):
				fmt.Println("no response from controller")
			default:
				fmt.Printf("error: %v\n", err)
			}
			logger.Debug("command failed", "cmd", cmd, "error", err)
			continue
		}

		fmt.Println(reading.Raw)
	}
}
