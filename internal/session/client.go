package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

const dialTimeout = 500 * time.Millisecond

// Client speaks the daemon protocol over a unix socket and satisfies KV, so
// callers cannot tell whether their session lives in-process or behind the
// daemon. Each call dials a fresh connection; the daemon is local and the
// call rate is a handful per request, so connection reuse buys nothing.
type Client struct {
	socketPath string
}

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// sentinels maps wire error strings back to the package's sentinel errors
// so errors.Is works across the socket boundary.
var sentinels = map[string]error{
	ErrNotFound.Error(): ErrNotFound,
	ErrExpired.Error():  ErrExpired,
}

func (c *Client) roundTrip(req Request) (Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, dialTimeout)
	if err != nil {
		return Response{}, fmt.Errorf("session: dial daemon: %w", err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(&req); err != nil {
		return Response{}, fmt.Errorf("session: send %s: %w", req.Op, err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("session: read %s reply: %w", req.Op, err)
	}
	if !resp.OK {
		if sent, ok := sentinels[resp.Error]; ok {
			return Response{}, sent
		}
		return Response{}, errors.New(resp.Error)
	}
	return resp, nil
}

func (c *Client) Get(key string) ([]byte, error) {
	resp, err := c.roundTrip(Request{Op: OpGet, Key: key})
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (c *Client) Put(key string, value []byte, ttl time.Duration) error {
	_, err := c.roundTrip(Request{Op: OpPut, Key: key, Value: value, TTLMillis: ttl.Milliseconds()})
	return err
}

func (c *Client) Delete(key string) error {
	_, err := c.roundTrip(Request{Op: OpDelete, Key: key})
	return err
}

// Wipe asks the daemon to drop the whole session atomically.
func (c *Client) Wipe() error {
	_, err := c.roundTrip(Request{Op: OpWipe})
	return err
}
