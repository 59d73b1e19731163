// Package remote implements scoring.Model over gRPC for models hosted by a
// separate inference process.  Messages are google.protobuf.Struct so no
// generated stubs are required on either side.
package remote

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/kgeval/pkg/errors"
)

// Service and method names of the embedding protocol.
const (
	ServiceName = "kgeval.v1.EmbeddingService"

	MethodHeadVector     = "/" + ServiceName + "/HeadVector"
	MethodRelationVector = "/" + ServiceName + "/RelationVector"
	MethodTailVector     = "/" + ServiceName + "/TailVector"
	MethodDescribe       = "/" + ServiceName + "/Describe"
)

// Field names inside the Struct messages.
const (
	FieldRelationFeatures = "relation_features"
	FieldEntityFeatures   = "entity_features"
	FieldRelation         = "relation"
	FieldTail             = "tail"
	FieldVector           = "vector"
)

// EncodeInts renders ids as a Struct list value.
func EncodeInts(ids []int) *structpb.Value {
	vals := make([]*structpb.Value, len(ids))
	for i, id := range ids {
		vals[i] = structpb.NewNumberValue(float64(id))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

// DecodeInts reads an integer list field.
func DecodeInts(s *structpb.Struct, field string) ([]int, error) {
	v, ok := s.GetFields()[field]
	if !ok {
		return nil, errors.New(errors.ErrCodeBadRequest, "missing field").WithDetail(field)
	}
	list := v.GetListValue()
	if list == nil {
		return nil, errors.New(errors.ErrCodeBadRequest, "field is not a list").WithDetail(field)
	}
	out := make([]int, len(list.GetValues()))
	for i, item := range list.GetValues() {
		out[i] = int(item.GetNumberValue())
	}
	return out, nil
}

// DecodeInt reads an integer scalar field.
func DecodeInt(s *structpb.Struct, field string) (int, error) {
	v, ok := s.GetFields()[field]
	if !ok {
		return 0, errors.New(errors.ErrCodeBadRequest, "missing field").WithDetail(field)
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0, errors.New(errors.ErrCodeBadRequest, "field is not a number").WithDetail(field)
	}
	return int(v.GetNumberValue()), nil
}

// EncodeVector wraps a vector response.
func EncodeVector(vec []float64) *structpb.Struct {
	vals := make([]*structpb.Value, len(vec))
	for i, x := range vec {
		vals[i] = structpb.NewNumberValue(x)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldVector: structpb.NewListValue(&structpb.ListValue{Values: vals}),
	}}
}

// DecodeVector unwraps a vector response.
func DecodeVector(s *structpb.Struct) ([]float64, error) {
	v, ok := s.GetFields()[FieldVector]
	if !ok || v.GetListValue() == nil {
		return nil, errors.New(errors.ErrCodeSerialization, "response carries no vector")
	}
	items := v.GetListValue().GetValues()
	out := make([]float64, len(items))
	for i, item := range items {
		out[i] = item.GetNumberValue()
	}
	return out, nil
}
