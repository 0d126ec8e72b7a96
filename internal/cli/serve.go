package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eaasxt/farmhand/internal/auth"
	httpapi "github.com/eaasxt/farmhand/internal/http"
	"github.com/eaasxt/farmhand/internal/server"
	"github.com/eaasxt/farmhand/internal/storage/sqlite"
	"github.com/eaasxt/farmhand/internal/ws"
)

func newServeCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reservation server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(st)
		},
	}
}

func runServe(st *rootState) error {
	store, err := sqlite.New(st.cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	resilient := sqlite.NewResilient(store)

	keyring, err := auth.LoadKeyringFromEnv()
	if err != nil {
		return err
	}

	hub := ws.NewHub()
	svc := httpapi.NewService(resilient, st.cfg.DefaultTTL).WithBroadcaster(hub)
	router := httpapi.NewRouter(svc, hub.Handler(), auth.Middleware(keyring))

	sweeper := sqlite.NewSweeper(resilient, hub, st.cfg.SweepInterval, st.cfg.StaleAfter)
	sweeper.Start(context.Background())
	defer sweeper.Stop()

	srv, err := server.New(server.Config{
		Addr:       st.cfg.Addr,
		SocketPath: st.cfg.Socket,
		Handler:    router,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	log.Printf("farmhand serving on %s (db %s)", st.cfg.Addr, st.cfg.DBPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
