// Package app builds the components shared by the judge services from the
// parsed arguments.
package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	grpcMiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpcRecovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"judge-engine/internal/files"
	"judge-engine/internal/parser"
	"judge-engine/internal/queue"
	"judge-engine/internal/remote"
	"judge-engine/internal/repository"
)

const remoteRequestTimeout = 30 * time.Second

// NewRepository opens postgres when a connection string is configured and
// falls back to the in memory repository otherwise.
func NewRepository(args parser.Arguments) (repository.Repository, error) {
	if args.DatabaseConn == "" {
		log.Warn().Msg("no database configured, submissions are kept in memory")
		return repository.NewMemoryRepository(), nil
	}

	return repository.NewRepository(args.DatabaseConn)
}

func NewFiles(args parser.Arguments) (files.Files, error) {
	localRoot := args.LocalFilesDir

	if localRoot == "" {
		localRoot = filepath.Join(os.TempDir(), "executions", "artifacts")
	}

	return files.NewFilesHandler(&files.Config{
		ForceLocalMode: args.S3BucketName == "",
		Local:          &files.LocalConfig{LocalRootPath: localRoot},
		S3:             &files.S3Config{BucketName: args.S3BucketName, Region: args.S3Region},
	})
}

func NewRemoteClient(args parser.Arguments) *remote.Client {
	return remote.NewClient(remote.Config{
		BaseURL:   args.RemoteURL,
		AuthToken: args.RemoteAuthToken,
		Timeout:   remoteRequestTimeout,
		MaxPolls:  uint64(args.RemoteMaxPolls),
	})
}

// NewQueue builds the submission pipeline queue. The broker is chosen by
// the arguments, with no broker the queue runs in process.
func NewQueue(args parser.Arguments, consumer bool, handler queue.Handler) (queue.Queue, error) {
	return queue.NewQueue(&queue.Config{
		ForceLocalMode: args.LocalQueue(),
		Consumer:       consumer,
		Nsq: &queue.NsqConfig{
			Topic:   args.NsqTopic,
			Channel: args.NsqChannel,
			Address: args.NsqAddress,
		},
		Sqs: &queue.SqsConfig{
			QueueURL:        args.SqsQueue,
			Region:          args.SqsRegion,
			WaitTimeSeconds: 20,
		},
	}, handler)
}

// HealthServer is the gRPC health service of a judge service.
type HealthServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
}

func NewHealthServer(address string, services ...string) (*HealthServer, error) {
	listener, err := net.Listen("tcp", address)

	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", address)
	}

	server := grpc.NewServer(grpcMiddleware.WithUnaryServerChain(
		grpcRecovery.UnaryServerInterceptor(grpcRecovery.WithRecoveryHandler(func(p interface{}) error {
			log.Error().Interface("panic", p).Msg("recovered from grpc handler panic")
			return status.Error(codes.Internal, "internal error")
		})),
	))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)

	for _, service := range services {
		healthServer.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	}

	return &HealthServer{server: server, health: healthServer, listener: listener}, nil
}

func (h *HealthServer) Address() string {
	return h.listener.Addr().String()
}

// Serve blocks until the server is stopped.
func (h *HealthServer) Serve() error {
	log.Info().Str("address", h.Address()).Msg("grpc health server started")

	if err := h.server.Serve(h.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}

	return nil
}

// Stop reports every service as not serving and stops the server.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}

// WaitForSignal blocks until the process is asked to stop or ctx is done.
func WaitForSignal(ctx context.Context) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
}
