// Command hodei-worker is the reference worker binary a provisioned
// instance runs: it opens a session against the orchestrator, registers,
// and executes assigned jobs as local shell processes, mirroring the
// teacher's own worker command's flag surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hodei-pipelines/orchestrator/pkg/ids"
	"github.com/hodei-pipelines/orchestrator/pkg/log"
	"github.com/hodei-pipelines/orchestrator/pkg/protocol"
	"github.com/hodei-pipelines/orchestrator/pkg/security"
	"github.com/hodei-pipelines/orchestrator/pkg/workeragent"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var (
	serverAddr string
	poolID     string
	useTLS     bool
	certDir    string
	logLevel   string
	logJSON    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "hodei-worker",
	Short:   "Run a Hodei Pipelines worker agent",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("hodei-worker version %s\nCommit: %s\n", Version, Commit))
	rootCmd.Flags().StringVar(&serverAddr, "server", "localhost:9090", "orchestrator grpc session address")
	rootCmd.Flags().StringVar(&poolID, "pool-id", "", "resource pool this worker belongs to")
	rootCmd.Flags().BoolVar(&useTLS, "tls", false, "connect with mutual TLS using certificates in --cert-dir")
	rootCmd.Flags().StringVar(&certDir, "cert-dir", "", "directory holding this worker's certificate and the cluster CA cert")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&logJSON, "log-json", true, "output logs in JSON format")
}

func run(cmd *cobra.Command, _ []string) error {
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
	logger := log.WithComponent("hodei-worker")

	workerID := os.Getenv("HODEI_WORKER_ID")
	if workerID == "" {
		workerID = ids.Worker()
	}

	conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := protocol.OpenSession(ctx, conn)
	if err != nil {
		return err
	}

	agent := workeragent.New(workeragent.Config{
		WorkerName:        workerID,
		Capabilities:      map[string]string{"poolId": poolID, "executor": "shell"},
		MaxConcurrentJobs: 1,
	}, workeragent.NewGRPCTransport(stream), workeragent.NewLocalExecutor())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutting down")
		cancel()
	}()

	logger.Info().Str("worker_id", workerID).Str("server", serverAddr).Msg("starting session")
	return agent.Run(ctx)
}

func dial() (*grpc.ClientConn, error) {
	if !useTLS {
		return grpc.NewClient(serverAddr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.CallContentSubtype(protocol.CodecName)),
		)
	}

	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, err
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, err
	}
	return protocol.DialWithMTLS(serverAddr, *cert, caCert)
}
