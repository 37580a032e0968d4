package application

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bverify/bverify-go/protocol"
)

// MaxMessageSize is the largest request a server reads.
const MaxMessageSize = 1 << 16

// connTimeout bounds the time a server spends on one connection.
const connTimeout = 5 * time.Second

// ErrUnknownNetwork indicates an address that is neither
// a tcp nor a unix address.
var ErrUnknownNetwork = errors.New("[application] Unknown network type")

// A ServerAddress describes a server's connection.
// It supports two types of connections: a TCP connection ("tcp")
// and a Unix socket connection ("unix").
//
// Additionally, TCP connections must use TLS for added security,
// and each is required to specify a TLS certificate and corresponding
// private key.
type ServerAddress struct {
	// Address is formatted as a url: scheme://address.
	Address string `toml:"address"`
	// TLSCertPath is a path to the server's TLS Certificate,
	// which has to be set if the connection is TCP.
	TLSCertPath string `toml:"cert,omitempty"`
	// TLSKeyPath is a path to the server's TLS private key,
	// which has to be set if the connection is TCP.
	TLSKeyPath string `toml:"key,omitempty"`
}

// A Handler serves one decoded request.
type Handler func(req *protocol.Request) *protocol.Response

// A ServerBase represents the base features needed to implement
// a bverify server. It handles the network layer: requests and
// responses and their encoding/decoding.
// A ServerBase also supports concurrent handling of requests;
// the handler must be safe for concurrent use.
type ServerBase struct {
	Verb           string
	acceptableReqs map[*ServerAddress]map[int]bool
	encoding       WireEncoding

	logger *Logger

	stop          chan struct{}
	stopOnce      sync.Once
	listeners     errgroup.Group
	waitCloseConn sync.WaitGroup

	configFilePath string
}

// NewServerBase creates a new generic bverify server base.
// perms lists, for each address, the request types it accepts.
func NewServerBase(conf *CommonConfig, listenVerb string,
	perms map[*ServerAddress]map[int]bool, enc WireEncoding, logger *Logger) *ServerBase {
	return &ServerBase{
		Verb:           listenVerb,
		acceptableReqs: perms,
		encoding:       enc,
		logger:         logger,
		stop:           make(chan struct{}),
		configFilePath: conf.Path,
	}
}

// ListenAndHandle listens at the given server address and serves
// every request it accepts with handler, until Shutdown is called.
func (sb *ServerBase) ListenAndHandle(addr *ServerAddress, handler Handler) error {
	ln, tlsConfig, err := addr.resolveAndListen()
	if err != nil {
		return err
	}
	sb.logger.Info(sb.Verb, "address", addr.Address)
	sb.listeners.Go(func() error {
		sb.acceptRequests(addr, ln, tlsConfig, handler)
		return nil
	})
	return nil
}

func (addr *ServerAddress) resolveAndListen() (ln net.Listener,
	tlsConfig *tls.Config, err error) {
	u, err := url.Parse(addr.Address)
	if err != nil {
		return nil, nil, err
	}
	switch u.Scheme {
	case "tcp":
		// force to use TLS
		cer, err := tls.LoadX509KeyPair(addr.TLSCertPath, addr.TLSKeyPath)
		if err != nil {
			return nil, nil, err
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cer}}
		tcpaddr, err := net.ResolveTCPAddr(u.Scheme, u.Host)
		if err != nil {
			return nil, nil, err
		}
		ln, err = net.ListenTCP(u.Scheme, tcpaddr)
		if err != nil {
			return nil, nil, err
		}
		return ln, tlsConfig, nil
	case "unix":
		unixaddr, err := net.ResolveUnixAddr(u.Scheme, u.Path)
		if err != nil {
			return nil, nil, err
		}
		ln, err = net.ListenUnix(u.Scheme, unixaddr)
		if err != nil {
			return nil, nil, err
		}
		return ln, nil, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, u.Scheme)
}

func (sb *ServerBase) acceptRequests(addr *ServerAddress, ln net.Listener,
	tlsConfig *tls.Config, handler Handler) {
	defer ln.Close()
	go func() {
		<-sb.stop
		if l, ok := ln.(interface {
			SetDeadline(time.Time) error
		}); ok {
			l.SetDeadline(time.Now())
		}
	}()

	for {
		select {
		case <-sb.stop:
			sb.waitCloseConn.Wait()
			return
		default:
		}
		conn, err := ln.Accept()
		if err != nil {
			var opErr *net.OpError
			if errors.As(err, &opErr) && opErr.Timeout() {
				continue
			}
			sb.logger.Error(err.Error())
			continue
		}
		if tlsConfig != nil {
			conn = tls.Server(conn, tlsConfig)
		}
		sb.waitCloseConn.Add(1)
		go func() {
			sb.acceptClient(addr, conn, handler)
			sb.waitCloseConn.Done()
		}()
	}
}

// checkRequestType verifies that the server is allowed to handle
// the given Request message type at the given address.
func (sb *ServerBase) checkRequestType(addr *ServerAddress,
	reqType int) error {
	if !sb.acceptableReqs[addr][reqType] {
		sb.logger.Error("Unacceptable message type",
			"request type", reqType, "address", addr.Address)
		return protocol.ErrMalformedMessage
	}
	return nil
}

func (sb *ServerBase) acceptClient(addr *ServerAddress, conn net.Conn, handler Handler) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connTimeout))
	id := uuid.New().String()

	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, conn, MaxMessageSize); err != nil && err != io.EOF {
		sb.logger.Error(err.Error(), "id", id)
		return
	}

	response := sb.handle(addr, id, buf.Bytes(), handler)
	res, err := sb.encoding.MarshalResponse(response)
	if err != nil {
		sb.logger.Error("Cannot encode response", "id", id, "error", err)
		return
	}
	if _, err := conn.Write(res); err != nil {
		sb.logger.Error(err.Error(), "id", id)
	}
}

func (sb *ServerBase) handle(addr *ServerAddress, id string, msg []byte, handler Handler) *protocol.Response {
	req, err := sb.encoding.UnmarshalRequest(msg)
	if err != nil {
		sb.logger.Warn("Malformed request", "id", id, "error", err)
		return protocol.NewErrorResponse(protocol.ErrMalformedMessage)
	}
	if err := sb.checkRequestType(addr, req.Type); err != nil {
		return protocol.NewErrorResponse(protocol.ErrMalformedMessage)
	}
	sb.logger.Debug("Handling request", "id", id, "type", req.Type)
	response := handler(req)
	if response.Error != protocol.ReqSuccess {
		sb.logger.Warn(response.Error.Error(), "id", id, "type", req.Type)
	}
	return response
}

// Logger returns the server base's logger instance.
func (sb *ServerBase) Logger() *Logger {
	return sb.logger
}

// ConfigFilePath returns the server base's config file path.
func (sb *ServerBase) ConfigFilePath() string {
	return sb.configFilePath
}

// Shutdown stops accepting connections, waits for the open ones to
// be served and returns. It may be called more than once.
func (sb *ServerBase) Shutdown() error {
	sb.stopOnce.Do(func() { close(sb.stop) })
	return sb.listeners.Wait()
}
