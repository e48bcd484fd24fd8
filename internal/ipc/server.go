package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// requestReadTimeout bounds how long a client may take to send its request line.
const requestReadTimeout = 2 * time.Second

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve answers one request per connection until ctx is done or the listener
// closes. Malformed, empty, and unknown commands never reach handler.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			_ = writeLine(conn, serveConn(ctx, conn, handler))
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, handler Handler) Response {
	_ = conn.SetReadDeadline(time.Now().Add(requestReadTimeout))

	var req Request
	if err := readLine(bufio.NewReader(conn), &req, "request"); err != nil {
		return failure("%v", err)
	}
	switch {
	case req.Command == "":
		return failure("missing command")
	case !Known(req.Command):
		return Unknown("", req.Command)
	}
	return handler.Handle(ctx, req)
}
