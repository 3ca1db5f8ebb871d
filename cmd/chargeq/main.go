package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mistakeknot/chargeq/client"
	"github.com/mistakeknot/chargeq/internal/auth"
	"github.com/mistakeknot/chargeq/internal/cli"
	httpapi "github.com/mistakeknot/chargeq/internal/http"
	"github.com/mistakeknot/chargeq/internal/reset"
	"github.com/mistakeknot/chargeq/internal/server"
	"github.com/mistakeknot/chargeq/internal/storage/sqlite"
	"github.com/mistakeknot/chargeq/internal/ws"
)

func main() {
	root := &cobra.Command{
		Use:   "chargeq",
		Short: "Charging spot queue server",
	}
	root.AddCommand(serveCmd(), resetCmd(), initKeysCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		addr          string
		dbPath        string
		keysFile      string
		resetInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chargeq HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.Println("no .env file found; using system environment")
			}

			st, err := sqlite.New(dbPath)
			if err != nil {
				return fmt.Errorf("store init: %w", err)
			}
			store := sqlite.NewResilient(st)
			defer store.Close()

			keyring, err := auth.LoadKeyring(keysFile)
			if err != nil {
				return fmt.Errorf("auth init: %w", err)
			}

			hub := ws.NewHub()
			svc := httpapi.NewService(store).WithBroadcaster(hub)
			router := httpapi.NewRouter(svc, hub.Handler(), auth.Middleware(keyring))

			srv, err := server.New(server.Config{Addr: addr, Handler: router})
			if err != nil {
				return fmt.Errorf("server init: %w", err)
			}

			scheduler := reset.NewScheduler(store, hub, resetInterval)
			scheduler.Start(cmd.Context())
			defer scheduler.Stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			log.Printf("chargeq listening on %s (db %s)", addr, dbPath)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-stop:
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", envDefault("CHARGEQ_ADDR", ":7341"), "listen address")
	cmd.Flags().StringVar(&dbPath, "db", envDefault("CHARGEQ_DB", "chargeq.db"), "sqlite database path")
	cmd.Flags().StringVar(&keysFile, "keys-file", auth.ResolveKeysPath(), "API keys file")
	cmd.Flags().DurationVar(&resetInterval, "reset-interval", time.Minute, "how often to check the daily reset boundary")
	return cmd
}

func resetCmd() *cobra.Command {
	var serverURL, apiKey string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Trigger the daily reset check against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverURL, client.WithAPIKey(apiKey))
			result, err := c.TriggerReset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", envDefault("CHARGEQ_SERVER", "http://127.0.0.1:7341"), "server base URL")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("CHARGEQ_API_KEY"), "API key for non-local servers")
	return cmd
}

func initKeysCmd() *cobra.Command {
	var keysFile string
	cmd := &cobra.Command{
		Use:   "init-keys",
		Short: "Generate an API key and append it to the keys file",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cli.InitKeysFile(keysFile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().StringVar(&keysFile, "keys-file", auth.ResolveKeysPath(), "API keys file")
	return cmd
}

func envDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
