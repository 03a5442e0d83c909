package client

import (
	"context"
	"errors"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"clusterwatch/pkg/server"
)

// Client is a typed SDK for the clusterwatch status service.
type Client struct {
	conn *grpc.ClientConn
}

// Options control Client behavior.
type Options struct {
	// DialTimeout is the timeout for establishing the initial connection.
	DialTimeout time.Duration
	// Insecure skips TLS (default true for local dev).
	Insecure bool
	// DialOptions are appended to the options derived from the fields above.
	DialOptions []grpc.DialOption
}

// New dials the clusterwatch daemon at address (host:port) and returns a Client.
func New(ctx context.Context, address string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = &Options{Insecure: true, DialTimeout: 5 * time.Second}
	}
	var dialOpts []grpc.DialOption
	if opts.Insecure {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	dialOpts = append(dialOpts, opts.DialOptions...)
	if opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
	}
	conn, err := grpc.DialContext(ctx, address, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Status returns the whole model.
func (c *Client) Status(ctx context.Context) (map[string]interface{}, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, server.MethodGetStatus, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// DCHost returns the host commands should be sent to.
func (c *Client) DCHost(ctx context.Context) (map[string]interface{}, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, server.MethodGetDCHost, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// SaveLayout asks the daemon to store the graph positions on every host.
func (c *Client) SaveLayout(ctx context.Context) error {
	return c.conn.Invoke(ctx, server.MethodSaveLayout, &emptypb.Empty{}, new(emptypb.Empty))
}

// Watch calls fn with the initial status and then every tree batch until
// ctx ends, the server closes the stream or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(map[string]interface{}) error) error {
	stream, err := c.conn.NewStream(ctx, &server.WatchStreamDesc, server.MethodWatch)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(msg.AsMap()); err != nil {
			return err
		}
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }
