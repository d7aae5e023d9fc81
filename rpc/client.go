package rpc

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"
)

// Client is the editor side of a connection. Server to client traffic such
// as diagnostics is passed to HandleFunc when it is set.
type Client struct {
	*jsonrpc2.Conn
	HandleFunc HandlerFunc
}

func (c *Client) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if c.HandleFunc != nil {
		c.HandleFunc(ctx, conn, req)
	}
}

func (c *Client) Call(method string, payload any, result any) error {
	return c.Conn.Call(context.Background(), method, payload, result)
}

func (c *Client) Notify(method string, payload any) error {
	return c.Conn.Notify(context.Background(), method, payload)
}
