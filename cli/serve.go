package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/chore-engine/api"
	"github.com/warp/chore-engine/auth"
	"github.com/warp/chore-engine/chores"
	"github.com/warp/chore-engine/config"
	"github.com/warp/chore-engine/push"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Run the HTTP API and serve the frontend.

On SIGINT/SIGTERM the server stops accepting connections, waits up to 30s
for active requests, then waits for pending push notifications before
closing the database.`,
	RunE: runServe,
}

// newNotifier picks Web Push when VAPID keys are configured.
func newNotifier(cfg config.Config) (chores.Notifier, error) {
	vapid := push.VAPID{
		Subject:    cfg.Push.VAPIDSubject,
		PublicKey:  cfg.Push.VAPIDPublicKey,
		PrivateKey: cfg.Push.VAPIDPrivateKey,
	}
	if !vapid.Configured() {
		log.Println("push: VAPID keys not configured, notifications are logged only")
		return push.LogNotifier{}, nil
	}
	return push.NewWebPush(vapid, &http.Client{Timeout: cfg.Push.Timeout}), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp(newNotifier)
	if err != nil {
		return err
	}
	defer a.Close()

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		a.cfg.HTTP.Addr = addr
	}

	secret := a.cfg.Auth.JWTSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return err
		}
		log.Println("Warning: CHORES_JWT_SECRET not set, using an ephemeral secret; sessions end on restart")
	}
	sessions, err := auth.NewSessions(secret, a.cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	handler := api.NewHandler(a.service, sessions, a.cfg.Push.VAPIDPublicKey)
	router := api.NewRouter(handler, api.Options{
		AllowedOrigins: a.cfg.HTTP.AllowedOrigins,
		StaticDir:      a.cfg.HTTP.StaticDir,
		Metrics:        a.cfg.Metrics.Enabled,
	})

	server := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", a.cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.dispatcher.Wait()
	log.Println("Server stopped")
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
