package dataapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls skylab.v1.Evaluation over an existing connection.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps conn. The caller owns the connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Evaluate sends req and decodes the response.
func (c *Client) Evaluate(ctx context.Context, req *Request, opts ...grpc.CallOption) (*Response, error) {
	in, err := EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, EvaluateMethod, in, out, opts...); err != nil {
		return nil, err
	}

	return DecodeResponse(out)
}
