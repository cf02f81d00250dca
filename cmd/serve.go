package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/csvagent/internal/api"
	"github.com/KaramelBytes/csvagent/internal/mcpserver"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if serveHost != "" {
			c.APIHost = serveHost
		}
		if servePort > 0 {
			c.APIPort = servePort
		}
		env, err := newEnv()
		if err != nil {
			return err
		}
		defer env.Close()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		success(cmd.ErrOrStderr(), "Serving on http://%s", c.Addr())
		return api.New(env, logger).Serve(ctx, c.Addr())
	},
}

var mcpLazy bool

var mcpCmd = &cobra.Command{
	Use:   "mcp <path>",
	Short: "Serve the analysis tools of a CSV file over MCP (stdio)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, s, err := openSession(args[0], mcpLazy)
		if err != nil {
			return err
		}
		defer env.Close()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger.Info("mcp server starting", zap.String("dataset", s.Dataset.Metadata.Path))
		if err := mcpserver.Serve(ctx, s.Tools, logger); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, mcpCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	mcpCmd.Flags().BoolVar(&mcpLazy, "lazy", false, "load the file lazily")
}

