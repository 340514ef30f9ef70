// Package server bootstraps the gRPC transport: TLS, keepalive, health
// checking and reflection, exactly as the teacher wires them. It never
// registers a generated application service -- no .proto is checked into
// this repository, so there is nothing for protoc to have produced. A
// transport shim that decodes internal/rpc's hand-written message structs
// onto the wire is someone else's concern; this package's job ends at
// handing back a *grpc.Server with the engine (a supervisor.Handler)
// reachable from it.
package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/nexus-weaver/kernel/internal/config"
	"github.com/nexus-weaver/kernel/internal/reqid"
	"github.com/nexus-weaver/kernel/internal/supervisor"
)

const (
	DefaultKeepaliveTime    = 30 * time.Second
	DefaultKeepaliveTimeout = 20 * time.Second
	DefaultKeepaliveMinTime = 15 * time.Second
)

// Server owns the listening socket and the grpc.Server built on top of it.
// It holds a supervisor.Handler so a future transport shim has somewhere
// to dispatch decoded requests, but registers no service for it on the
// grpc.Server (only the health and reflection services are registered) --
// the engine only ever touches Handler, never *grpc.Server directly.
type Server struct {
	cfg     config.Config
	handler supervisor.Handler
	log     *slog.Logger

	grpcServer *grpc.Server
	health     *health.Server
}

// New constructs a Server from cfg, wiring handler in for future dispatch.
// TLS is required, as in the teacher: cfg.TLS must name a CA, certificate
// and key file.
func New(cfg config.Config, handler supervisor.Handler, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}

	srv := &Server{
		cfg:     cfg,
		handler: handler,
		log:     log,
	}

	tlsConfig, err := srv.tlsConfig()
	if err != nil {
		return nil, err
	}

	srv.grpcServer = grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    DefaultKeepaliveTime,
			Timeout: DefaultKeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             DefaultKeepaliveMinTime,
			PermitWithoutStream: true,
		}),
		grpc.Creds(credentials.NewTLS(tlsConfig)),
		grpc.ChainUnaryInterceptor(srv.logUnary),
	)

	srv.health = health.NewServer()
	healthpb.RegisterHealthServer(srv.grpcServer, srv.health)
	reflection.Register(srv.grpcServer)

	return srv, nil
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	crt, err := tls.LoadX509KeyPair(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("error loading server keypair: %w", err)
	}

	caCert, err := os.ReadFile(s.cfg.TLS.CACertFile)
	if err != nil {
		return nil, fmt.Errorf("error loading ca-cert file: %w", err)
	}

	clientCAs := x509.NewCertPool()
	clientCAs.AppendCertsFromPEM(caCert)

	return &tls.Config{
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    clientCAs,
		Certificates: []tls.Certificate{crt},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// Serve listens on cfg.ListenAddr and blocks serving requests. Before
// accepting connections it asks the handler for a health reading and
// reflects that into the grpc health service, so a client that only
// speaks the health protocol can still tell the supervisor is up.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}

	if _, err := s.handler.Health(context.Background()); err != nil {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	} else {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}

	s.log.Info("listening", "addr", lis.Addr())

	return s.grpcServer.Serve(lis)
}

// Stop terminates the server immediately, without waiting for in-flight
// RPCs.
func (s *Server) Stop() {
	s.grpcServer.Stop()
}

// GracefulStop waits for in-flight RPCs to finish before stopping.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

// Handler returns the supervisor.Handler this server was built around, for
// a transport shim to dispatch decoded requests to.
func (s *Server) Handler() supervisor.Handler {
	return s.handler
}

// logUnary stamps every unary RPC with a fresh correlation id and logs its
// outcome, the same access-log shape regardless of which method ends up
// registered on top of this server.
func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	id, err := reqid.New()
	if err != nil {
		return handler(ctx, req)
	}

	start := time.Now()
	resp, err := handler(ctx, req)
	s.log.Info("rpc", "req_id", id.String(), "method", info.FullMethod, "duration", time.Since(start), "err", err)
	return resp, err
}
