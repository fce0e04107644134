package evaluator

import (
	"context"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region wire
// The evaluator service exchanges google.protobuf.Struct messages so no
// generated stubs are needed on either side.
const (
	serviceName = "claimprob.v1.Evaluator"
	queryMethod = "/" + serviceName + "/Query"
)

func encodeRequest(claim string, t Template, model string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"claim":         claim,
		"template_id":   t.ID,
		"template_text": t.Text,
		"model":         model,
	})
}

func decodeRequest(req *structpb.Struct) (claim string, t Template, model string) {
	f := req.GetFields()
	return f["claim"].GetStringValue(),
		Template{
			ID:   int(f["template_id"].GetNumberValue()),
			Text: f["template_text"].GetStringValue(),
		},
		f["model"].GetStringValue()
}

func encodeSample(s Sample) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"template_id":   s.TemplateID,
		"prompt_sha256": s.Fingerprint,
		"prob_true":     s.ProbTrue,
		"model_id":      s.ModelID,
		"timestamp":     s.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func decodeSample(resp *structpb.Struct) (Sample, error) {
	f := resp.GetFields()
	if _, ok := f["prob_true"]; !ok {
		return Sample{}, fmt.Errorf("%w: prob_true missing from response", ErrInvalidProbability)
	}
	p, err := ValidateProbability(f["prob_true"].GetNumberValue())
	if err != nil {
		return Sample{}, err
	}
	fp := f["prompt_sha256"].GetStringValue()
	if fp == "" {
		return Sample{}, fmt.Errorf("response missing prompt_sha256")
	}
	ts, err := time.Parse(time.RFC3339Nano, f["timestamp"].GetStringValue())
	if err != nil {
		ts = time.Now().UTC()
	}
	return Sample{
		TemplateID:  int(f["template_id"].GetNumberValue()),
		Fingerprint: fp,
		ProbTrue:    p,
		ModelID:     f["model_id"].GetStringValue(),
		Timestamp:   ts,
	}, nil
}

// #endregion wire

// #region client-struct
// GRPCClient forwards queries to a remote evaluator service.
type GRPCClient struct {
	conn   grpc.ClientConnInterface
	closer func() error
}

// #endregion client-struct

// #region constructor
// NewGRPCClient connects to the evaluator service at addr.
func NewGRPCClient(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn, closer: conn.Close}, nil
}

// NewGRPCClientWithConn wraps an existing connection. The caller keeps
// ownership of conn.
func NewGRPCClientWithConn(conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{conn: conn}
}

// Close shuts down the connection if this client opened it.
func (c *GRPCClient) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// #endregion constructor

// #region query
// Query performs one remote evaluation.
func (c *GRPCClient) Query(ctx context.Context, claim string, t Template, model string) (Sample, error) {
	req, err := encodeRequest(claim, t, model)
	if err != nil {
		return Sample{}, fmt.Errorf("encode query: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, queryMethod, req, resp); err != nil {
		return Sample{}, fmt.Errorf("query rpc: %w", err)
	}
	return decodeSample(resp)
}

// #endregion query

// #region server
type evaluatorServer interface {
	Query(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type backendServer struct {
	backend Client
}

func (s *backendServer) Query(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	claim, t, model := decodeRequest(req)
	if claim == "" {
		return nil, status.Error(codes.InvalidArgument, "claim is required")
	}
	sample, err := s.backend.Query(ctx, claim, t, model)
	if err != nil {
		log.Printf("[RPC] query template=%d failed: %v", t.ID, err)
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return encodeSample(sample)
}

func queryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(evaluatorServer).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: queryMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(evaluatorServer).Query(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*evaluatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Query", Handler: queryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "claimprob/v1/evaluator.proto",
}

// RegisterServer exposes backend as the evaluator service on s.
func RegisterServer(s *grpc.Server, backend Client) {
	s.RegisterService(&serviceDesc, &backendServer{backend: backend})
}

// #endregion server
