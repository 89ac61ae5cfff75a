// Command notesync-local runs the notesync handler outside Lambda, against a payload file or as a local webhook server.
package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/UKHomeOffice/notesync/internal/gateway"
	"github.com/UKHomeOffice/notesync/internal/logging"
	"github.com/UKHomeOffice/notesync/pkg/notesync"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "notesync-local",
		Short: "Run the LiveChat to HubSpot note handler locally",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			env, _ := cmd.Flags().GetString("env-file")
			if err := godotenv.Load(env); err != nil && cmd.Flags().Changed("env-file") {
				return fmt.Errorf("could not load %v: %w", env, err)
			}
			logging.Setup()
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file to load before running")

	rootCmd.AddCommand(invokeCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func invokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invoke [payload.json]",
		Short: "Send one webhook payload through the handler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := ioutil.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("could not read payload: %w", err)
			}

			req := &events.APIGatewayProxyRequest{
				Path:       "/",
				HTTPMethod: http.MethodPost,
				Body:       string(body),
				RequestContext: events.APIGatewayProxyRequestContext{
					RequestID: uuid.NewString(),
					Stage:     "local",
				},
			}

			h := notesync.NewHandler(notesync.HubSpot, nil, slog.Default())
			res, err := h.Handle(cmd.Context(), req)
			fmt.Fprintf(cmd.OutOrStdout(), "status: %v\n", res.StatusCode)
			return err
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the handler as a local webhook endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")

			h := notesync.NewHandler(notesync.HubSpot, nil, slog.Default())
			srv := &http.Server{
				Addr:              addr,
				Handler:           gateway.NewRouter(h.Handle, slog.Default()),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() {
				slog.Info("serving webhook", "addr", addr)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdown)
		},
	}

	cmd.Flags().String("addr", ":8080", "Listen address")

	return cmd
}
