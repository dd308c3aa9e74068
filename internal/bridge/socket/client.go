package socket

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fabricekabongo/nexmark"
	"github.com/fabricekabongo/nexmark/event"
)

// ResponseError is a non-OK response from the server.
type ResponseError struct {
	Code    ErrorCode
	Message string
}

func (e *ResponseError) Error() string { return fmt.Sprintf("%d:%s", e.Code, e.Message) }

func (e *ResponseError) Retryable() bool { return Retryable(int32(e.Code)) }

// Client is a single connection to a Server. Requests are sent one at a time;
// the connection's generator lives as long as the Client.
type Client struct {
	authToken string

	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

func Dial(ctx context.Context, network, address, authToken string) (*Client, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return &Client{authToken: authToken, conn: conn, r: bufio.NewReader(conn)}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Do sends req and waits for its response. A missing request id is filled
// in; non-OK responses are returned as *ResponseError.
func (c *Client) Do(ctx context.Context, req *SocketRequest) (*SocketResponse, error) {
	if req.RequestId == "" {
		req.RequestId = uuid.NewString()
	}
	if req.AuthToken == "" {
		req.AuthToken = c.authToken
	}
	payload, err := MarshalMessage(req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}
	if err := WriteFrame(c.conn, payload); err != nil {
		return nil, err
	}
	for {
		frame, err := ReadFrame(c.r)
		if err != nil {
			return nil, err
		}
		res, err := UnmarshalResponse(frame)
		if err != nil {
			return nil, err
		}
		// responses to requests that were abandoned earlier are skipped
		if res.RequestId != "" && res.RequestId != req.RequestId {
			continue
		}
		if ErrorCode(res.ErrorCode) != ErrorCodeOK {
			return res, &ResponseError{Code: ErrorCode(res.ErrorCode), Message: res.ErrorMessage}
		}
		return res, nil
	}
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, &SocketRequest{Operation: int32(OperationPing), Ping: &PingRequest{}})
	return err
}

// Open replaces the connection's generator and returns the effective config.
func (c *Client) Open(ctx context.Context, cfg nexmark.Config) (*OpenResponse, error) {
	res, err := c.Do(ctx, &SocketRequest{Operation: int32(OperationOpen), Open: OpenRequestFor(cfg)})
	if err != nil {
		return nil, err
	}
	return res.Open, nil
}

// Next returns false once the remote stream is exhausted.
func (c *Client) Next(ctx context.Context) (event.Event, bool, error) {
	res, err := c.Do(ctx, &SocketRequest{Operation: int32(OperationNext)})
	if err != nil {
		return event.Event{}, false, err
	}
	if len(res.Events) == 0 {
		return event.Event{}, false, nil
	}
	ev, err := DecodeEvent(res.Events[0])
	if err != nil {
		return event.Event{}, false, err
	}
	return ev, true, nil
}

// Take returns up to n events and whether the remote stream is exhausted.
func (c *Client) Take(ctx context.Context, n int) ([]event.Event, bool, error) {
	res, err := c.Do(ctx, &SocketRequest{Operation: int32(OperationTake), Take: &TakeRequest{N: int32(min(n, MaxTake))}})
	if err != nil {
		return nil, false, err
	}
	out := make([]event.Event, 0, len(res.Events))
	for _, w := range res.Events {
		ev, err := DecodeEvent(w)
		if err != nil {
			return nil, false, err
		}
		out = append(out, ev)
	}
	return out, res.Exhausted, nil
}

// Resolve asks the server to resolve a JSON payload into an event.
func (c *Client) Resolve(ctx context.Context, payload []byte) (event.Event, error) {
	res, err := c.Do(ctx, &SocketRequest{Operation: int32(OperationResolve), Resolve: &ResolveRequest{Payload: payload}})
	if err != nil {
		return event.Event{}, err
	}
	if len(res.Events) != 1 {
		return event.Event{}, fmt.Errorf("resolve: expected one event, got %d", len(res.Events))
	}
	return DecodeEvent(res.Events[0])
}

// DialAndRequest sends a single request on a fresh connection.
func DialAndRequest(ctx context.Context, network, address string, req *SocketRequest) (*SocketResponse, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	payload, err := MarshalMessage(req)
	if err != nil {
		return nil, err
	}
	if err := WriteFrame(conn, payload); err != nil {
		return nil, err
	}
	frame, err := ReadFrame(bufio.NewReader(conn))
	if err != nil {
		return nil, err
	}
	return UnmarshalResponse(frame)
}
