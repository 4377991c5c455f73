package dataapi

import (
	"errors"
	"fmt"
	"sort"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rafaeljc/skylab/internal/evaluation"
)

// Request is a decoded Evaluate request.
//
// Wire form: {"context": {...}, "flag_keys": ["a"], "track_exposures": true}.
// Every field is optional. Unknown fields are ignored.
type Request struct {
	Context        evaluation.Context
	FlagKeys       []string
	TrackExposures bool
}

// Response is a decoded Evaluate response.
//
// Wire form: {"version": 3, "variants": {"flag": {"key": "on", "value": ...}}}.
type Response struct {
	Version  int64
	Variants evaluation.Results
}

// DecodeRequest validates and converts the wire form of a request. Numbers
// in the context arrive as doubles, the only numeric type of Struct.
func DecodeRequest(msg *structpb.Struct) (*Request, error) {
	req := &Request{Context: evaluation.Context{}}
	if msg == nil {
		return req, nil
	}
	fields := msg.GetFields()

	if v, ok := fields["context"]; ok && !isNull(v) {
		s := v.GetStructValue()
		if s == nil {
			return nil, errors.New("context must be an object")
		}
		req.Context = evaluation.NewContext(s.AsMap())
	}

	if v, ok := fields["flag_keys"]; ok && !isNull(v) {
		list := v.GetListValue()
		if list == nil {
			return nil, errors.New("flag_keys must be a list of strings")
		}
		for i, item := range list.GetValues() {
			key, ok := item.GetKind().(*structpb.Value_StringValue)
			if !ok || key.StringValue == "" {
				return nil, fmt.Errorf("flag_keys[%d] must be a non-empty string", i)
			}
			req.FlagKeys = append(req.FlagKeys, key.StringValue)
		}
	}

	if v, ok := fields["track_exposures"]; ok && !isNull(v) {
		b, ok := v.GetKind().(*structpb.Value_BoolValue)
		if !ok {
			return nil, errors.New("track_exposures must be a boolean")
		}
		req.TrackExposures = b.BoolValue
	}

	return req, nil
}

// EncodeRequest builds the wire form of a request.
func EncodeRequest(req *Request) (*structpb.Struct, error) {
	fields := map[string]any{}
	if req.Context != nil {
		fields["context"] = req.Context.AsValue().Interface()
	}
	if len(req.FlagKeys) > 0 {
		keys := make([]any, len(req.FlagKeys))
		for i, k := range req.FlagKeys {
			keys[i] = k
		}
		fields["flag_keys"] = keys
	}
	if req.TrackExposures {
		fields["track_exposures"] = true
	}
	return structpb.NewStruct(fields)
}

// EncodeResponse builds the wire form of a response. Absent variant fields
// are omitted.
func EncodeResponse(resp *Response) (*structpb.Struct, error) {
	variants := make(map[string]any, len(resp.Variants))
	for key, v := range resp.Variants {
		entry := map[string]any{"key": v.Key}
		if !v.Value.IsNull() {
			entry["value"] = v.Value.Interface()
		}
		if !v.Payload.IsNull() {
			entry["payload"] = v.Payload.Interface()
		}
		if len(v.Metadata) > 0 {
			entry["metadata"] = evaluation.Map(v.Metadata).Interface()
		}
		variants[key] = entry
	}

	return structpb.NewStruct(map[string]any{
		"version":  float64(resp.Version),
		"variants": variants,
	})
}

// DecodeResponse converts the wire form of a response.
func DecodeResponse(msg *structpb.Struct) (*Response, error) {
	fields := msg.GetFields()
	resp := &Response{
		Version:  int64(fields["version"].GetNumberValue()),
		Variants: evaluation.Results{},
	}

	variants := fields["variants"].GetStructValue()
	for key, raw := range variants.GetFields() {
		entry := raw.GetStructValue()
		if entry == nil {
			return nil, fmt.Errorf("variant %q must be an object", key)
		}
		ef := entry.GetFields()

		v := evaluation.Variant{Key: ef["key"].GetStringValue()}
		if val, ok := ef["value"]; ok {
			v.Value = evaluation.ValueOf(val.AsInterface())
		}
		if val, ok := ef["payload"]; ok {
			v.Payload = evaluation.ValueOf(val.AsInterface())
		}
		if md := ef["metadata"].GetStructValue(); md != nil {
			m, _ := evaluation.ValueOf(md.AsMap()).AsMap()
			v.Metadata = m
		}
		resp.Variants[key] = v
	}
	return resp, nil
}

// requestKey identifies the inputs of an evaluation for the result cache.
func requestKey(req *Request) string {
	keys := make([]evaluation.Value, 0, len(req.FlagKeys))
	sorted := append([]string(nil), req.FlagKeys...)
	sort.Strings(sorted)
	for _, k := range sorted {
		keys = append(keys, evaluation.String(k))
	}
	return req.Context.Canonical() + "|" + evaluation.List(keys...).String()
}

func isNull(v *structpb.Value) bool {
	_, null := v.GetKind().(*structpb.Value_NullValue)
	return null
}
