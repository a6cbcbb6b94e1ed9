package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"quantapp/internal/engine"
)

// Client calls the Backtester service over an established connection.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient creates a Client using conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Run executes a backtest remotely. Failures carry the gRPC status of the
// server-side error.
func (c *Client) Run(ctx context.Context, p engine.Params, opts ...grpc.CallOption) (*engine.Report, error) {
	req, err := toStruct(p)
	if err != nil {
		return nil, fmt.Errorf("encoding params: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, RunMethod, req, resp, opts...); err != nil {
		return nil, err
	}
	var rep engine.Report
	if err := fromStruct(resp, &rep); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &rep, nil
}

// Strategies lists the strategies the server knows.
func (c *Client) Strategies(ctx context.Context, opts ...grpc.CallOption) ([]string, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, ListStrategiesMethod, &structpb.Struct{}, resp, opts...); err != nil {
		return nil, err
	}
	var names []string
	for _, v := range resp.GetFields()[strategiesField].GetListValue().GetValues() {
		names = append(names, v.GetStringValue())
	}
	return names, nil
}
