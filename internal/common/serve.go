package common

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// ServeMetrics exposes the default prometheus registry on /metrics until ctx is cancelled.
func ServeMetrics(ctx context.Context, port uint16) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return ServeHttp(ctx, port, mux)
}

// ServeHttp serves handler on port until ctx is cancelled, then waits up to five seconds
// for in-flight requests. It returns straight away if the port cannot be bound and
// returns nil only after a clean shutdown.
func ServeHttp(ctx context.Context, port uint16, handler http.Handler) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return errors.Wrapf(err, "listening on :%d", port)
	}
	return serve(ctx, listener, handler)
}

func serve(ctx context.Context, listener net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	addr := listener.Addr().String()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Infof("Stopping http server on %s", addr)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warnf("Http server on %s did not shut down cleanly", addr)
		}
	}()

	log.Infof("Listening on %s", addr)
	if err := srv.Serve(listener); err != http.ErrServerClosed {
		return errors.Wrapf(err, "serving on %s", addr)
	}
	<-stopped
	return nil
}
