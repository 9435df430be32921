package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/blancdj/internal/api"
	"github.com/satindergrewal/blancdj/internal/stream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with the HTTP control API and network streams",
	Long: `Run the mixing engine. The control API is served under /api, the master
as Ogg/Opus on /stream and over WebRTC via /offer. Configured sinks are
selected at startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Port = port
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		e, closeEngine := startEngine(cfg)
		defer closeEngine()

		webrtcHandler := stream.NewWebRTCHandler(e.Broadcaster, cfg.ICEServers...)
		defer webrtcHandler.Close()

		mux := http.NewServeMux()
		mux.Handle("/api/", api.New(e))
		mux.Handle("/stream", stream.NewHTTPHandler(e.Broadcaster, cfg.StreamName))
		mux.Handle("/offer", webrtcHandler)

		engineDone := make(chan struct{})
		go func() {
			defer close(engineDone)
			e.Run(ctx)
		}()

		addr := fmt.Sprintf(":%d", cfg.Port)
		server := &http.Server{Addr: addr, Handler: mux}

		go func() {
			<-ctx.Done()
			slog.Info("shutting down")
			server.Close()
		}()

		slog.Info("blancdj live", "addr", addr, "stream", cfg.StreamName)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			cancel()
			<-engineDone
			return fmt.Errorf("HTTP server error: %w", err)
		}
		<-engineDone
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "HTTP port (overrides config)")
}
