// Command hodei-orchestrator runs the control plane: the job queue,
// placement scheduler, worker factory, execution coordinator and admin
// HTTP ingress in a single process, fronted by a cobra CLI in the
// teacher's own style.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/hodei-pipelines/orchestrator/pkg/config"
	"github.com/hodei-pipelines/orchestrator/pkg/coordinator"
	"github.com/hodei-pipelines/orchestrator/pkg/events"
	"github.com/hodei-pipelines/orchestrator/pkg/ids"
	"github.com/hodei-pipelines/orchestrator/pkg/ingress"
	"github.com/hodei-pipelines/orchestrator/pkg/instance"
	"github.com/hodei-pipelines/orchestrator/pkg/instance/drivers"
	"github.com/hodei-pipelines/orchestrator/pkg/log"
	"github.com/hodei-pipelines/orchestrator/pkg/metrics"
	"github.com/hodei-pipelines/orchestrator/pkg/pool"
	"github.com/hodei-pipelines/orchestrator/pkg/queue"
	"github.com/hodei-pipelines/orchestrator/pkg/rpcserver"
	"github.com/hodei-pipelines/orchestrator/pkg/scheduler"
	"github.com/hodei-pipelines/orchestrator/pkg/security"
	"github.com/hodei-pipelines/orchestrator/pkg/session"
	"github.com/hodei-pipelines/orchestrator/pkg/storage"
	"github.com/hodei-pipelines/orchestrator/pkg/types"
	"github.com/hodei-pipelines/orchestrator/pkg/workerfactory"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "hodei-orchestrator",
	Short:   "Run the Hodei Pipelines orchestrator control plane",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("hodei-orchestrator version %s\nCommit: %s\n", Version, Commit))
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML configuration file (uses built-in defaults when unset)")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})
	logger := log.WithComponent("hodei-orchestrator")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := storage.NewMemoryStore()
	pools := pool.New(store.ResourcePools())
	if err := pools.Bootstrap(ctx); err != nil {
		return err
	}
	for _, p := range cfg.Pools {
		if err := pools.Save(ctx, poolConfigToResourcePool(p)); err != nil {
			logger.Warn().Err(err).Str("pool_id", p.ID).Msg("failed to seed configured pool")
		}
	}

	sessions := session.New()
	bus := events.New(0)

	ca := security.NewCertAuthority(store)
	if err := ca.Initialize(); err != nil {
		return err
	}

	provisioner := instance.NewBreakerManager(map[string]instance.Manager{
		"local": drivers.NewLocal(),
	})
	factory := workerfactory.New(provisioner, cfg.Workers)

	monitors := map[string]scheduler.ResourceMonitor{
		"local": scheduler.NewWorkerCountMonitor(factory, pools),
	}
	sched := scheduler.New(store.ResourcePools(), monitors, cfg.Scheduler.Strategy())

	q := queue.New(cfg.Queue.MaxSize, cfg.Queue.RankingStrategy())

	// Server and Coordinator need each other: Server implements
	// coordinator.Dispatcher, Coordinator relays worker traffic through
	// Server. Build Server without a coordinator, then wire it in.
	server := rpcserver.New(sessions, nil)
	coord := coordinator.New(q, sched, factory, sessions, store, bus, server, nil, coordinator.Config{
		Tick:               cfg.Coordinator.Tick,
		GracePeriod:        cfg.Coordinator.GracePeriod,
		RegistrationWindow: cfg.Coordinator.RegistrationWindow,
		WorkerReuseWindow:  cfg.Coordinator.WorkerReuseWindow,
	})
	server.SetCoordinator(coord)

	wake := make(chan struct{}, 1)
	go coord.Run(ctx, wake)

	grpcServer, err := newGRPCServer(ca)
	if err != nil {
		return err
	}
	server.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}
	go func() {
		logger.Info().Str("addr", cfg.Server.GRPCAddr).Msg("worker session grpc server listening")
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	metrics.SetVersion(Version)
	collector := metrics.NewCollector(q, pools, sessions)
	collector.Start()
	defer collector.Stop()

	router := ingress.NewRouter(ingress.Deps{Queue: q, Store: store, Cancel: coord.CancelJob})
	router.Handle("/metrics", metrics.Handler())
	router.Get("/health", metrics.HealthHandler())
	router.Get("/ready", metrics.ReadyHandler())
	router.Get("/livez", metrics.LivenessHandler())
	httpServer := &http.Server{Addr: cfg.Server.AdminAddr, Handler: router}
	go func() {
		logger.Info().Str("addr", cfg.Server.AdminAddr).Msg("admin http ingress listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("admin http server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	cancel()
	grpcServer.GracefulStop()
	return httpServer.Shutdown(context.Background())
}

// newGRPCServer builds the mTLS-secured gRPC server workers connect to,
// mirroring the teacher's manager-side TLS construction (pkg/api.NewServer):
// request but don't require a client cert at the transport layer, since
// the first RPC a worker makes is its own registration.
func newGRPCServer(ca *security.CertAuthority) (*grpc.Server, error) {
	cert, err := ca.IssueClientCertificate(ids.New("orchestrator"))
	if err != nil {
		return nil, err
	}
	rootCert, err := x509.ParseCertificate(ca.GetRootCACert())
	if err != nil {
		return nil, err
	}
	certPool := x509.NewCertPool()
	certPool.AddCert(rootCert)

	tlsConfig := &tls.Config{
		ClientAuth:   tls.RequestClientCert,
		Certificates: []tls.Certificate{*cert},
		ClientCAs:    certPool,
		MinVersion:   tls.VersionTLS13,
	}
	return rpcserver.NewTLSServer(credentials.NewTLS(tlsConfig)), nil
}

func poolConfigToResourcePool(p config.PoolConfig) types.ResourcePool {
	id := p.ID
	if id == "" {
		id = ids.Pool()
	}
	now := ids.Now()
	return types.ResourcePool{
		ID:         id,
		Name:       p.Name,
		Type:       p.Type,
		Status:     types.PoolActive,
		MaxWorkers: p.MaxWorkers,
		Labels:     p.Labels,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
