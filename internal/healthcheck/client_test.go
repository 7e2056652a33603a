package healthcheck

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startHealth(t *testing.T) (*Client, *health.Server) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, hs
}

func TestCheckServingAndNotServing(t *testing.T) {
	c, hs := startHealth(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Check(ctx, ""); err != nil {
		t.Fatalf("Check: %v", err)
	}
	hs.SetServingStatus("transconecta-api", healthpb.HealthCheckResponse_NOT_SERVING)
	if err := c.Check(ctx, "transconecta-api"); !errors.Is(err, ErrNotServing) {
		t.Fatalf("expected ErrNotServing, got %v", err)
	}
	if err := c.Check(ctx, "billing"); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}
}

func TestWaitServingGivesUp(t *testing.T) {
	c, hs := startHealth(t)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := c.WaitServing(ctx, "", 20*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestMapHealthError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "not found", err: status.Error(codes.NotFound, "unknown service"), want: ErrUnknownService},
		{name: "unavailable", err: status.Error(codes.Unavailable, "conn refused"), want: ErrUnavailable},
		{name: "pass through", err: status.Error(codes.Internal, "internal"), want: status.Error(codes.Internal, "internal")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapHealthError(tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("mapHealthError() = %v, want %v", got, tc.want)
			}
		})
	}
}
