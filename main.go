package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	orchestrator "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/agents/orchestrator"
	dialoguex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/dialogue"
	statex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/state"
	configx "github.com/tanpawarit/Chative-Dining-Orchestrator/pkg/config"
	_ "github.com/tanpawarit/Chative-Dining-Orchestrator/pkg/logger/autoload"
	"github.com/tanpawarit/Chative-Dining-Orchestrator/server"
)

const (
	Version = "0.1.0"
	appName = "dining"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Restaurant recommendation dialogue orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configx.UseEnvFile(envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env", "", "path to .env file")

	cmd.AddCommand(serveCmd(), chatCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := server.New(a.orchestrator,
				server.WithGatherer(a.registry),
				server.WithTurnTimeout(a.cfg.TurnTimeout),
			)
			if err != nil {
				return err
			}

			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default APP_HTTP_ADDR)")

	return cmd
}

func chatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the orchestrator from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			return chat(ctx, a.orchestrator, sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session id")

	return cmd
}

// chat runs a line-based conversation until DONE or end of input.
func chat(ctx context.Context, o *orchestrator.Orchestrator, sessionID string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "session %s (ctrl-d to quit)\n", sessionID)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		for i := 0; ; i++ {
			res, err := o.ProcessTurn(ctx, sessionID, text)
			if err != nil {
				if errors.Is(err, orchestrator.ErrInvalidMessage) {
					fmt.Fprintln(out, "(message rejected)")
					break
				}
				return err
			}
			fmt.Fprintln(out, res.Message)

			if res.Stage == statex.StageDone && res.Directive.Action == dialoguex.ActionComplete {
				return nil
			}
			if !res.Directive.AutoContinue || i >= 2 {
				break
			}
			text = dialoguex.ContinueUtterance
		}
	}
}
