package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mkral/importer/internal/core/cursor"
	"github.com/mkral/importer/internal/core/domain"
)

// GRPCHandler executes one fetch against a shared gRPC connection. The
// generated vendor client lives in the closure; the engine only sees the
// normalized batch.
type GRPCHandler func(ctx context.Context, conn grpc.ClientConnInterface, req Request) (cursor.Batch, error)

// GRPCProvider adapts a gRPC data source to the Provider contract.
type GRPCProvider struct {
	BaseProvider

	endpoint string
	conn     *grpc.ClientConn
	handler  GRPCHandler
}

// NewGRPCProvider creates a gRPC-backed provider.
func NewGRPCProvider(
	name string,
	chain domain.Blockchain,
	caps Capabilities,
	rl RateLimit,
	endpoint string,
	handler GRPCHandler,
) (*GRPCProvider, error) {
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial grpc endpoint %s: %w", target, err)
	}

	return &GRPCProvider{
		BaseProvider: NewBaseProvider(name, chain, caps, rl),
		endpoint:     endpoint,
		conn:         conn,
		handler:      handler,
	}, nil
}

// Execute performs one paginated fetch through the handler.
func (p *GRPCProvider) Execute(ctx context.Context, req Request) (cursor.Batch, error) {
	if !p.Capabilities().SupportsOperation(req.Kind) {
		return cursor.Batch{}, fmt.Errorf("%w: %s", ErrUnsupported, req.Kind)
	}
	return p.handler(ctx, p.conn, req)
}

// Conn exposes the underlying connection for generated clients.
func (p *GRPCProvider) Conn() *grpc.ClientConn { return p.conn }

// Close tears down the connection.
func (p *GRPCProvider) Close() error { return p.conn.Close() }
