package protocol

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/encoding"
)

func init() {
	encoding.RegisterCodec(Codec{})
}

// DialWithMTLS establishes a gRPC connection to the orchestrator secured
// with mutual TLS, mirroring the teacher's connectWithMTLS pattern and
// registering this package's codec as the call option for the connection.
func DialWithMTLS(serverAddr string, cert tls.Certificate, caCert *x509.Certificate) (*grpc.ClientConn, error) {
	certPool := x509.NewCertPool()
	certPool.AddCert(caCert)

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      certPool,
		MinVersion:   tls.VersionTLS13,
	}

	creds := credentials.NewTLS(tlsConfig)
	conn, err := grpc.NewClient(serverAddr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to dial orchestrator: %w", err)
	}
	return conn, nil
}
