package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-studio/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		noMic      bool
	)

	cmd := &cobra.Command{
		Use:   "ema-studio",
		Short: "Create advertisements by talking to an assistant",
		Long: `ema-studio runs a voice conversation that ends in an advertisement.

Hold a conversation with ctrl+r (start and stop recording), then answer the
assistant's questions with slash commands such as /format, /image and /mode.
Type /help inside the application for the full list.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			updates := make(chan tea.Msg, 64)
			app, err := newStudio(ctx, cfg, updates)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			if !noMic {
				if err := app.openMicrophone(); err != nil {
					fmt.Fprintf(os.Stderr, "microphone unavailable, continuing without it: %v\n", err)
				}
			}

			program := tea.NewProgram(newModel(ctx, app, updates), tea.WithAltScreen(), tea.WithContext(ctx))
			_, err = program.Run()
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("EMA_CONFIG"), "path to a YAML config file")
	cmd.Flags().BoolVar(&noMic, "no-mic", false, "do not open the microphone")
	cmd.AddCommand(newConfigCmd(&configPath))
	return cmd
}

func newConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration without secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			out, err := describeConfig(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
}
