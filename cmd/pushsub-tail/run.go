package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/maproulette/pushsub"
)

const tailHandlerID pushsub.HandlerID = "tail"

func run(ctx context.Context, cfg config, out, logOut io.Writer) error {
	logger, err := newLogger(cfg.LogLevel, logOut)
	if err != nil {
		return err
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return errors.Wrap(err, "parse endpoint")
	}
	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set(cfg.APIKeyHeader, cfg.APIKey)
	}

	metrics := pushsub.NewMetrics("pushsub")
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		if err := metrics.Register(reg); err != nil {
			return err
		}
		stop := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer stop()
	}

	opts := []pushsub.Option{
		pushsub.WithBaseDelay(cfg.BaseDelay),
		pushsub.WithKeepAliveInterval(cfg.KeepAlive),
		pushsub.WithMetrics(metrics),
	}
	if cfg.RefCounted {
		opts = append(opts, pushsub.WithIntentPolicy(pushsub.IntentRefCounted))
	}

	client := pushsub.NewWebsocketClient(
		logger,
		nil,
		pushsub.NewOpenConnectionParamsRepo(logger, pushsub.StaticOpenConnectionParams(*endpoint, header)),
		opts...,
	)
	defer client.Cleanup()

	p := &printer{out: out}
	for _, sub := range cfg.Subscriptions {
		client.AddServerSubscription(sub, tailHandlerID, p.print)
	}

	if err := client.Open(ctx); err != nil {
		return err
	}
	logger.Infof("tailing %d subscriptions on %s", len(cfg.Subscriptions), endpoint.Redacted())

	<-ctx.Done()
	return nil
}

func newLogger(level string, w io.Writer) (pushsub.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "parse log level")
	}
	l := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
	return pushsub.NewZerologLogger(l), nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger pushsub.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server stopped: %s", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// printer writes each pushed frame as a single compact JSON line.
type printer struct {
	mu  sync.Mutex
	out io.Writer
	buf bytes.Buffer
}

func (p *printer) print(msg pushsub.ServerMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Reset()
	if err := json.Compact(&p.buf, msg.Raw); err != nil {
		return errors.Wrap(err, "compact frame")
	}
	p.buf.WriteByte('\n')
	_, err := p.out.Write(p.buf.Bytes())
	return err
}
