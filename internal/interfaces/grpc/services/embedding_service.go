// Package services implements the gRPC services exposed by "kgeval serve".
package services

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/kgeval/internal/domain/scoring"
	"github.com/turtacn/kgeval/internal/intelligence/remote"
	"github.com/turtacn/kgeval/pkg/errors"
)

// EmbeddingServer is the handler contract of kgeval.v1.EmbeddingService.
type EmbeddingServer interface {
	HeadVector(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RelationVector(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	TailVector(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Describe(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// EmbeddingService serves a local scoring.Model to remote evaluators.
type EmbeddingService struct {
	model scoring.Model
	desc  scoring.Descriptor
}

// NewEmbeddingService wraps model.  desc is reported by Describe.
func NewEmbeddingService(model scoring.Model, desc scoring.Descriptor) *EmbeddingService {
	return &EmbeddingService{model: model, desc: desc}
}

// HeadVector implements EmbeddingServer.
func (s *EmbeddingService) HeadVector(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rf, err := remote.DecodeInts(req, remote.FieldRelationFeatures)
	if err != nil {
		return nil, toStatus(err)
	}
	ef, err := remote.DecodeInts(req, remote.FieldEntityFeatures)
	if err != nil {
		return nil, toStatus(err)
	}
	vec, err := s.model.HeadVector(ctx, rf, ef)
	if err != nil {
		return nil, toStatus(err)
	}
	return remote.EncodeVector(vec), nil
}

// RelationVector implements EmbeddingServer.
func (s *EmbeddingService) RelationVector(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rel, err := remote.DecodeInt(req, remote.FieldRelation)
	if err != nil {
		return nil, toStatus(err)
	}
	vec, err := s.model.RelationVector(ctx, rel)
	if err != nil {
		return nil, toStatus(err)
	}
	return remote.EncodeVector(vec), nil
}

// TailVector implements EmbeddingServer.
func (s *EmbeddingService) TailVector(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tail, err := remote.DecodeInt(req, remote.FieldTail)
	if err != nil {
		return nil, toStatus(err)
	}
	vec, err := s.model.TailVector(ctx, tail)
	if err != nil {
		return nil, toStatus(err)
	}
	return remote.EncodeVector(vec), nil
}

// Describe implements EmbeddingServer.
func (s *EmbeddingService) Describe(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(map[string]interface{}{
		"id":        s.desc.ID,
		"backend":   s.desc.Backend,
		"dim":       s.desc.Dim,
		"entities":  s.desc.Entities,
		"relations": s.desc.Relations,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	code := codes.Internal
	switch errors.GetCode(err) {
	case errors.ErrCodeBadRequest, errors.ErrCodeDimensionMismatch:
		code = codes.InvalidArgument
	case errors.ErrCodeIDOutOfRange:
		code = codes.OutOfRange
	}
	return status.Error(code, err.Error())
}

func unaryHandler(call func(EmbeddingServer, context.Context, *structpb.Struct) (*structpb.Struct, error), method string) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		impl := srv.(EmbeddingServer)
		if interceptor == nil {
			return call(impl, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(impl, ctx, req.(*structpb.Struct))
		})
	}
}

// EmbeddingServiceDesc describes kgeval.v1.EmbeddingService for grpc.Server.
var EmbeddingServiceDesc = grpc.ServiceDesc{
	ServiceName: remote.ServiceName,
	HandlerType: (*EmbeddingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "HeadVector", Handler: unaryHandler(EmbeddingServer.HeadVector, remote.MethodHeadVector)},
		{MethodName: "RelationVector", Handler: unaryHandler(EmbeddingServer.RelationVector, remote.MethodRelationVector)},
		{MethodName: "TailVector", Handler: unaryHandler(EmbeddingServer.TailVector, remote.MethodTailVector)},
		{MethodName: "Describe", Handler: unaryHandler(EmbeddingServer.Describe, remote.MethodDescribe)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kgeval/v1/embedding.proto",
}
