package application

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/bverify/bverify-go/protocol"
)

// A Client sends requests to a bverify server, one connection
// per request.
type Client struct {
	address   *url.URL
	encoding  WireEncoding
	tlsConfig *tls.Config
}

// NewClient returns a Client for the server at address, a url of the
// form scheme://address like a ServerAddress. tlsConfig is used for
// tcp addresses.
func NewClient(address string, enc WireEncoding, tlsConfig *tls.Config) (*Client, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "tcp" && u.Scheme != "unix" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, u.Scheme)
	}
	return &Client{address: u, encoding: enc, tlsConfig: tlsConfig}, nil
}

// Do sends a request of the given type and returns the decoded
// response. Responses that can't be decoded are ErrMalformedMessage
// responses; the error is only set when the exchange itself fails.
func (c *Client) Do(reqType int, request interface{}) (*protocol.Response, error) {
	msg, err := c.encoding.MarshalRequest(reqType, request)
	if err != nil {
		return nil, err
	}
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connTimeout))

	if _, err := conn.Write(msg); err != nil {
		return nil, err
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return nil, err
		}
	}
	res, err := io.ReadAll(conn)
	if err != nil {
		return nil, err
	}
	return c.encoding.UnmarshalResponse(reqType, res), nil
}

func (c *Client) dial() (net.Conn, error) {
	switch c.address.Scheme {
	case "tcp":
		return tls.Dial("tcp", c.address.Host, c.tlsConfig)
	default:
		return net.Dial("unix", c.address.Path)
	}
}
