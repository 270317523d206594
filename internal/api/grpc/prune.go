// Package grpc provides the gRPC API of partwise. Messages are
// google.protobuf.Struct values so that no generated code is needed.
package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/query/planner"
	"github.com/partwise/partwise/internal/routing"
	"github.com/partwise/partwise/pkg/types"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "partwise.v1.PruneService"

// PruneServiceServer is the server API of the prune service.
type PruneServiceServer interface {
	// Plan takes {sql, params} and returns a plan.
	Plan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	// Route takes {table, row} and returns a routing result.
	Route(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// Planner builds scan plans.
type Planner interface {
	Plan(ctx context.Context, sql string, params []interface{}) (*planner.Plan, error)
}

// Router places rows.
type Router interface {
	Route(ctx context.Context, table string, row types.Row) (*routing.Result, error)
}

// PruneServer implements PruneServiceServer.
type PruneServer struct {
	planner Planner
	router  Router
	logger  *zap.Logger
}

// NewPruneServer creates a new gRPC prune server.
func NewPruneServer(p Planner, r Router, logger *zap.Logger) *PruneServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PruneServer{planner: p, router: r, logger: logger}
}

// Register registers s with gs.
func (s *PruneServer) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// Plan handles PruneService/Plan.
func (s *PruneServer) Plan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	fields := req.GetFields()
	sql := fields["sql"].GetStringValue()
	if sql == "" {
		return nil, status.Error(codes.InvalidArgument, "sql is required")
	}
	var params []interface{}
	if list := fields["params"].GetListValue(); list != nil {
		params = normalize(list.AsSlice())
	}

	plan, err := s.planner.Plan(ctx, sql, params)
	if err != nil {
		s.logger.Debug("plan failed", zap.String("request_id", requestID), zap.Error(err))
		return nil, toStatus(err)
	}
	if plan.Targets == nil {
		plan.Targets = []planner.ScanTarget{}
	}
	return toStruct(plan, requestID)
}

// Route handles PruneService/Route.
func (s *PruneServer) Route(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	fields := req.GetFields()
	table := fields["table"].GetStringValue()
	if table == "" {
		return nil, status.Error(codes.InvalidArgument, "table is required")
	}
	rowStruct := fields["row"].GetStructValue()
	if rowStruct == nil {
		return nil, status.Error(codes.InvalidArgument, "row is required")
	}
	row := types.Row(rowStruct.AsMap()).NormalizeJSONNumbers()

	res, err := s.router.Route(ctx, table, row)
	if err != nil {
		s.logger.Debug("route failed", zap.String("request_id", requestID), zap.Error(err))
		return nil, toStatus(err)
	}
	return toStruct(res, requestID)
}

// toStruct converts v through its JSON form.
func toStruct(v interface{}, requestID string) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	m["request_id"] = requestID
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// normalize turns whole numbers into int64. Struct numbers are doubles, so
// integer keys beyond 2^53 lose precision in transit; clients send those as
// strings, which integer keys accept.
func normalize(vals []interface{}) []interface{} {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = types.NormalizeJSONNumber(v)
	}
	return out
}

// toStatus maps an error to a gRPC status.
func toStatus(err error) error {
	code := codes.Internal
	switch errors.GetCode(err) {
	case errors.CodeNotPartitioned:
		code = codes.NotFound
	case errors.CodeTableExists:
		code = codes.AlreadyExists
	case errors.CodeWriteConflict:
		code = codes.Aborted
	case errors.CodeSpawnNotAllowed, errors.CodeNoPartition:
		code = codes.FailedPrecondition
	default:
		switch errors.GetCategory(err) {
		case errors.ErrCategoryValidation, errors.ErrCategoryQuery:
			code = codes.InvalidArgument
		}
	}
	return status.Error(code, err.Error())
}

func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}

func planHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PruneServiceServer).Plan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Plan"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PruneServiceServer).Plan(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func routeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PruneServiceServer).Route(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Route"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PruneServiceServer).Route(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes PruneService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PruneServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Plan", Handler: planHandler},
		{MethodName: "Route", Handler: routeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "partwise/v1/prune.proto",
}

// PruneClient calls PruneService.
type PruneClient struct {
	cc grpc.ClientConnInterface
}

// NewPruneClient creates a client over cc.
func NewPruneClient(cc grpc.ClientConnInterface) *PruneClient {
	return &PruneClient{cc: cc}
}

// Plan calls PruneService/Plan.
func (c *PruneClient) Plan(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Plan", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Route calls PruneService/Route.
func (c *PruneClient) Route(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Route", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

var _ PruneServiceServer = (*PruneServer)(nil)

// PlanRequest builds a Plan request.
func PlanRequest(sql string, params ...interface{}) (*structpb.Struct, error) {
	m := map[string]interface{}{"sql": sql}
	if len(params) > 0 {
		m["params"] = params
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("grpc: build plan request: %w", err)
	}
	return s, nil
}

// RouteRequest builds a Route request.
func RouteRequest(table string, row types.Row) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"table": table,
		"row":   map[string]interface{}(row),
	})
	if err != nil {
		return nil, fmt.Errorf("grpc: build route request: %w", err)
	}
	return s, nil
}
