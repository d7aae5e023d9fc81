package rpc

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/sourcegraph/jsonrpc2"
)

type HandlerFunc func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request)

func (h HandlerFunc) Handle(ctx context.Context, c *jsonrpc2.Conn, r *jsonrpc2.Request) {
	h(ctx, c, r)
}

// CustomStream joins a separate reader and writer, such as stdin and stdout,
// into one stream.
type CustomStream struct {
	io.ReadCloser
	io.WriteCloser
}

func (conn *CustomStream) Read(p []byte) (n int, err error) {
	return conn.ReadCloser.Read(p)
}

func (conn *CustomStream) Write(p []byte) (n int, err error) {
	return conn.WriteCloser.Write(p)
}

// Close closes both halves, even when the first one fails.
func (conn *CustomStream) Close() error {
	return errors.Join(conn.ReadCloser.Close(), conn.WriteCloser.Close())
}

// HandlerFactory creates the handler serving one accepted connection.
type HandlerFactory func() jsonrpc2.Handler

// Serve accepts connections on l until it fails, serving each one with a
// fresh handler. Requests on a connection are handled one at a time, in the
// order they arrive.
func Serve(ctx context.Context, l net.Listener, codec jsonrpc2.ObjectCodec, newHandler HandlerFactory) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		go func() {
			cn := jsonrpc2.NewConn(
				ctx,
				jsonrpc2.NewBufferedStream(conn, codec),
				newHandler(),
			)
			defer cn.Close()

			select {
			case <-cn.DisconnectNotify():
			case <-ctx.Done():
			}
		}()
	}
}

func StartServer(ctx context.Context, addr string, codec jsonrpc2.ObjectCodec, newHandler HandlerFactory) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	defer l.Close()
	defer closeOnCancel(ctx, l)()

	return Serve(ctx, l, codec, newHandler)
}

// closeOnCancel closes l once ctx is cancelled. The returned stop function
// ends the watch and waits for it to finish.
func closeOnCancel(ctx context.Context, l net.Listener) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			l.Close()
		case <-done:
		}
	}()

	return func() {
		close(done)
		<-exited
	}
}
