package geohive

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/i5heu/geohive/pkg/apiServer"
)

const shutdownTimeout = 10 * time.Second

// Handler returns the HTTP API of a started instance.
func (g *GeoHive) Handler() (http.Handler, error) {
	st, err := g.Store()
	if err != nil {
		return nil, err
	}
	r, err := g.Renderer()
	if err != nil {
		return nil, err
	}
	return apiServer.New(st, r,
		apiServer.WithLogger(g.log),
		apiServer.WithMetrics(g.registry),
	), nil
}

// Run serves the HTTP API on Config.Listen until ctx is done, then shuts
// the server down and closes the instance.
func (g *GeoHive) Run(ctx context.Context) error { // A
	h, err := g.Handler()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              g.config.Listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.log.WithField("listen", g.config.Listen).Info("serving api")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return errors.Join(err, g.Close(context.Background()))
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	return errors.Join(err, g.Close(shutdownCtx))
}
