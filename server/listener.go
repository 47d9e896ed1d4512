package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/mdlayher/vsock"
)

const (
	DefaultReadTimeout = 30 * time.Second

	// maxRequestBytes bounds a single request read from a connection.
	maxRequestBytes = 1 << 20
)

// ListenVsock listens on the given vsock port of the local context.
func ListenVsock(port uint32) (net.Listener, error) {
	listener, err := vsock.Listen(port, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create vsock listener: %w", err)
	}
	return listener, nil
}

// ListenTCP listens on addr. It serves development setups outside an enclave.
func ListenTCP(addr string) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create tcp listener: %w", err)
	}
	return listener, nil
}

// ConnServer answers one JSON request per connection. The client half-closes its
// write side after sending, and the server replies with a single JSON document.
type ConnServer struct {
	service     *Service
	maxWorkers  int
	readTimeout time.Duration
}

func NewConnServer(service *Service, maxWorkers int, readTimeout time.Duration) *ConnServer {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &ConnServer{service: service, maxWorkers: maxWorkers, readTimeout: readTimeout}
}

// Serve accepts connections until ctx is cancelled or the listener fails. Each
// connection gets a worker slot; when the pool is full the connection is closed
// immediately. Serve closes the listener before returning.
func (s *ConnServer) Serve(ctx context.Context, listener net.Listener) error {
	log := s.service.log

	stop := context.AfterFunc(ctx, func() {
		_ = listener.Close()
	})
	defer stop()
	defer func() {
		_ = listener.Close()
	}()

	semaphore := make(chan struct{}, s.maxWorkers)
	log.Info().
		Str("addr", listener.Addr().String()).
		Int("max_workers", s.maxWorkers).
		Msg("auction server listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Error().Err(err).Msg("failed to accept connection")
			continue
		}

		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }()
				s.handleConnection(ctx, c)
			}(conn)
		default:
			log.Info().Msg("no workers available, rejecting connection")
			s.service.metrics.connectionRejected()
			if err := conn.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close rejected connection")
			}
		}
	}
}

func (s *ConnServer) handleConnection(ctx context.Context, conn net.Conn) {
	log := s.service.log
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("panic recovered in connection handler")
		}
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close connection")
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(conn, maxRequestBytes)); err != nil {
		log.Error().Err(err).Msg("failed to read request")
		return
	}

	response := s.service.Handle(ctx, buf.Bytes())

	if err := json.NewEncoder(conn).Encode(response); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
