// Package server runs the per-connection client flow and the TCP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/arena-server/internal/lobby"
	"github.com/DoyleJ11/arena-server/internal/metrics"
	"github.com/DoyleJ11/arena-server/internal/types"
)

type Options struct {
	OutboxSize   int
	WriteTimeout time.Duration
}

type Server struct {
	lobby        *lobby.Lobby
	log          *zap.Logger
	metrics      *metrics.Metrics
	outboxSize   int
	writeTimeout time.Duration
	wg           sync.WaitGroup
}

func New(lb *lobby.Lobby, logger *zap.Logger, m *metrics.Metrics, opts Options) *Server {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 32
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Server{
		lobby:        lb,
		log:          logger.Named("server"),
		metrics:      m,
		outboxSize:   opts.OutboxSize,
		writeTimeout: opts.WriteTimeout,
	}
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections until ctx is cancelled, then waits for every
// client flow to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("accepting connections", zap.String("addr", ln.Addr().String()))

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			s.wg.Wait()
			return fmt.Errorf("accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(ctx, NewLineConn(c))
		}()
	}
}

// ServeConn runs one client from welcome to disconnect. It returns once
// the session is gone from the lobby and the connection is closed.
func (s *Server) ServeConn(parent context.Context, conn Conn) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	log := s.log.With(zap.String("remote_addr", conn.RemoteAddr()))
	s.metrics.Connections.Inc()
	defer s.metrics.Connections.Dec()

	out := make(chan types.ServerMessage, s.outboxSize)
	ticket, err := s.lobby.Join(ctx, out)
	if err != nil {
		log.Warn("could not register client", zap.Error(err))
		_ = conn.Close()
		return
	}
	log = log.With(zap.String("session_id", ticket.ID))
	log.Info("client connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		defer conn.Close()
		s.writeLoop(ctx, conn, out, ticket.Kicked, log)
	}()

	s.readLoop(ctx, conn, ticket.ID, out, log)

	s.lobby.Leave(ticket.ID)
	close(out)
	<-writerDone
	log.Info("client disconnected")
}

func (s *Server) readLoop(ctx context.Context, conn Conn, id string, out chan<- types.ServerMessage, log *zap.Logger) {
	for {
		data, err := conn.ReadMessage(ctx)
		if errors.Is(err, ErrMessageTooLarge) {
			s.metrics.ProtocolErrors.WithLabelValues("too_large").Inc()
			log.Debug("oversized message discarded")
			select {
			case out <- types.NewError("Invalid message format"):
			case <-ctx.Done():
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Info("read failed", zap.Error(err))
			}
			return
		}

		msg, err := types.DecodeClientMessage(data)
		if err != nil {
			reason, text := "decode", "Invalid message format"
			var uk *types.UnknownKindError
			if errors.As(err, &uk) {
				reason, text = "unknown_kind", fmt.Sprintf("Unknown message type: %s", uk.Kind)
			}
			s.metrics.ProtocolErrors.WithLabelValues(reason).Inc()
			log.Debug("bad message", zap.Error(err))

			select {
			case out <- types.NewError(text):
			case <-ctx.Done():
				return
			}
			continue
		}

		switch m := msg.(type) {
		case types.SelectTeam:
			err = s.lobby.SelectTeam(ctx, id, m.Team)
		case types.ReadyToBattle:
			err = s.lobby.Ready(ctx, id)
		default:
			err = fmt.Errorf("unhandled client message %T", m)
		}
		if ctx.Err() != nil || errors.Is(err, lobby.ErrLobbyClosed) {
			return
		}
		if err != nil {
			// The lobby has already reported it to the client.
			log.Debug("request rejected", zap.Error(err))
		}
	}
}

// writeLoop drains out onto the connection. When the lobby drops the
// session, whatever is already queued is flushed before closing.
func (s *Server) writeLoop(ctx context.Context, conn Conn, out <-chan types.ServerMessage, kicked <-chan struct{}, log *zap.Logger) {
	for {
		select {
		case msg, ok := <-out:
			if !ok {
				return
			}
			if err := s.write(ctx, conn, msg); err != nil {
				log.Info("write failed", zap.String("kind", msg.Kind()), zap.Error(err))
				return
			}

		case <-kicked:
			for {
				select {
				case msg, ok := <-out:
					if !ok {
						return
					}
					if err := s.write(ctx, conn, msg); err != nil {
						return
					}
				default:
					log.Debug("session released by lobby")
					return
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) write(ctx context.Context, conn Conn, msg types.ServerMessage) error {
	payload, err := types.Encode(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	return conn.WriteMessage(wctx, payload)
}
