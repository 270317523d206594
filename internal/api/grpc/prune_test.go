package grpc

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/partwise/partwise/internal/manifest"
	"github.com/partwise/partwise/internal/query/planner"
	"github.com/partwise/partwise/internal/routing"
	"github.com/partwise/partwise/pkg/types"
)

func newTestClient(t *testing.T) *PruneClient {
	t.Helper()
	catalog, err := manifest.NewCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	_, err = catalog.RegisterTable(context.Background(), types.TableDef{
		TableID:        "users",
		Strategy:       types.StrategyHash,
		KeyExpr:        "user_id",
		KeyKind:        types.KindInt,
		HashPartitions: 8,
	})
	require.NoError(t, err)

	cache := manifest.NewSnapshotCache(catalog, manifest.DefaultCacheConfig(), nil)
	t.Cleanup(cache.Close)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	NewPruneServer(planner.NewPlanner(cache), routing.NewService(cache, catalog, routing.Config{}, nil, nil), nil).Register(gs)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewPruneClient(conn)
}

func TestPruneService_Plan(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	req, err := PlanRequest("SELECT * FROM users WHERE user_id = $1", 42)
	require.NoError(t, err)
	resp, err := client.Plan(ctx, req)
	require.NoError(t, err)

	fields := resp.GetFields()
	assert.Equal(t, "users", fields["table"].GetStringValue())
	assert.Equal(t, float64(8), fields["total_partitions"].GetNumberValue())
	targets := fields["targets"].GetListValue().GetValues()
	require.Len(t, targets, 1)
	assert.True(t, targets[0].GetStructValue().GetFields()["recheck"].GetBoolValue())
	assert.NotEmpty(t, fields["request_id"].GetStringValue())

	// Unbound placeholders keep every partition.
	req, err = PlanRequest("SELECT * FROM users WHERE user_id = $1")
	require.NoError(t, err)
	resp, err = client.Plan(ctx, req)
	require.NoError(t, err)
	assert.Len(t, resp.GetFields()["targets"].GetListValue().GetValues(), 8)
	assert.True(t, resp.GetFields()["found_params"].GetBoolValue())
}

func TestPruneService_Route(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	req, err := RouteRequest("users", types.Row{"user_id": int64(42)})
	require.NoError(t, err)
	resp, err := client.Route(ctx, req)
	require.NoError(t, err)

	// The routed partition must be the one a plan for the same key selects.
	planReq, err := PlanRequest("SELECT * FROM users WHERE user_id = 42")
	require.NoError(t, err)
	plan, err := client.Plan(ctx, planReq)
	require.NoError(t, err)
	target := plan.GetFields()["targets"].GetListValue().GetValues()[0].GetStructValue()
	assert.Equal(t,
		target.GetFields()["name"].GetStringValue(),
		resp.GetFields()["partition"].GetStringValue())
}

func TestPruneService_Errors(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	req, err := PlanRequest("")
	require.NoError(t, err)
	_, err = client.Plan(ctx, req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	req, err = PlanRequest("SELECT * FROM missing")
	require.NoError(t, err)
	_, err = client.Plan(ctx, req)
	assert.Equal(t, codes.NotFound, status.Code(err))

	req, err = RouteRequest("users", types.Row{"user_id": nil})
	require.NoError(t, err)
	_, err = client.Route(ctx, req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
