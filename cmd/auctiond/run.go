package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/englishauction/attest"
	"github.com/cloudx-io/englishauction/config"
	"github.com/cloudx-io/englishauction/core"
	"github.com/cloudx-io/englishauction/engine"
	"github.com/cloudx-io/englishauction/notify"
	"github.com/cloudx-io/englishauction/payment"
	"github.com/cloudx-io/englishauction/receipts"
	"github.com/cloudx-io/englishauction/server"
)

func newLogger(cfg config.LogConfig, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

func newPayer(cfg config.PaymentConfig, reference string, clock core.Clock, logger zerolog.Logger) (engine.Payer, error) {
	if cfg.Mode == "http" {
		return payment.NewHTTPPayer(payment.HTTPConfig{
			URL:                    cfg.URL,
			Reference:              reference,
			Timeout:                cfg.Timeout,
			MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
			OpenTimeout:            cfg.OpenTimeout,
		}, logger)
	}
	return payment.NewJournal(clock, logger), nil
}

// newReceiptSink opens the receipt stream and its signing key. The returned closer
// releases the file.
func newReceiptSink(cfg config.ReceiptsConfig, logger zerolog.Logger) (*notify.ReceiptWriter, io.Closer, error) {
	var (
		km  *receipts.KeyManager
		err error
	)
	if cfg.KeyFile != "" {
		km, err = receipts.LoadKeyManager(cfg.KeyFile)
	} else {
		km, err = receipts.NewKeyManager()
	}
	if err != nil {
		return nil, nil, err
	}
	signer, err := receipts.NewSigner(km)
	if err != nil {
		return nil, nil, err
	}
	publicKey, err := km.PublicKeyPEM()
	if err != nil {
		return nil, nil, err
	}

	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open receipt stream: %w", err)
	}
	logger.Info().
		Str("path", cfg.Path).
		Str("public_key", publicKey).
		Msg("signing receipts")
	return notify.NewReceiptWriter(file, signer, logger), file, nil
}

// watchSettlement logs the outstanding liabilities once the auction ends.
func watchSettlement(bus *notify.Bus, e *engine.Engine, logger zerolog.Logger) error {
	onEnd := func(n engine.Notification) {
		snapshot := e.Snapshot(context.Background())
		logger.Info().
			Str("kind", string(n.Kind)).
			Str("winner", string(n.Subject)).
			Str("liabilities", snapshot.Liabilities().Dec()).
			Bool("conserved", snapshot.Conserved()).
			Msg("auction closed, settlement open")
	}
	if err := bus.SubscribeAsync(engine.AuctionEnded, onEnd); err != nil {
		return err
	}
	return bus.SubscribeAsync(engine.AuctionForceEnded, onEnd)
}

func listen(cfg config.ServerConfig) (net.Listener, error) {
	if cfg.Transport == "tcp" {
		return server.ListenTCP(cfg.TCPAddr)
	}
	return server.ListenVsock(cfg.VsockPort)
}

func run(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	auctionID := cfg.AuctionID
	if auctionID == "" {
		auctionID = uuid.NewString()
	}
	logger = logger.With().Str("auction_id", auctionID).Logger()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	clock := core.SystemClock{}
	payer, err := newPayer(cfg.Payment, auctionID, clock, logger)
	if err != nil {
		return err
	}

	recorder := notify.NewRecorder(cfg.Server.NotificationBuffer)
	bus := notify.NewBus()
	sinks := notify.Fanout{notify.NewLogSink(logger), recorder, bus}
	if cfg.Receipts.Enabled {
		writer, closer, err := newReceiptSink(cfg.Receipts, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close receipt stream")
			}
		}()
		sinks = append(sinks, writer)
	}

	e, err := engine.New(core.Identity(cfg.Owner), policy, clock.Now(), payer,
		engine.WithAuctionID(auctionID),
		engine.WithSink(sinks),
		engine.WithLogger(logger),
		engine.WithMetrics(engine.NewMetrics(registry)),
	)
	if err != nil {
		return err
	}
	if err := watchSettlement(bus, e, logger); err != nil {
		return err
	}
	defer bus.Wait()

	service := server.NewService(e, clock,
		server.WithRecorder(recorder),
		server.WithAttester(attest.NitroAttester),
		server.WithServiceMetrics(server.NewMetrics(registry)),
		server.WithServiceLogger(logger),
	)

	listener, err := listen(cfg.Server)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- server.NewConnServer(service, cfg.Server.MaxWorkers, cfg.Server.ReadTimeout).Serve(ctx, listener)
	}()

	var httpServer *http.Server
	if cfg.Server.HTTPAddr != "" {
		httpServer = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           server.NewRouter(service, registry),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.Server.HTTPAddr).Msg("http server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	logger.Info().
		Str("owner", cfg.Owner).
		Time("deadline", e.Deadline(ctx)).
		Str("transport", cfg.Server.Transport).
		Msg("auction started")

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errCh:
	}
	stop()

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error().Err(shutdownErr).Msg("http server shutdown failed")
		}
	}
	logger.Info().Msg("auction server stopped")
	return err
}
