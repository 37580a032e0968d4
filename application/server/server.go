package server

import (
	"errors"

	"github.com/bverify/bverify-go/application"
	"github.com/bverify/bverify-go/protocol"
	"github.com/bverify/bverify-go/protocol/commitlog"
	"github.com/bverify/bverify-go/protocol/verifier"
	"github.com/bverify/bverify-go/storage/commitmentkv"
	"github.com/bverify/bverify-go/storage/kv"
	"github.com/bverify/bverify-go/storage/kv/leveldbkv"
)

// An Address describes a server's connection.
//
// Accepting updates has to be specified explicitly for each connection.
// Other types of requests are allowed by default.
// Updates and authorization updates are "writes" to the server,
// while proof and commitment requests are "reads".
// So, by default, addresses are "read-only".
type Address struct {
	*application.ServerAddress
	AllowUpdates bool `toml:"allow_updates,omitempty"`
}

// A BVerifyServer represents a bverify server.
// It wraps a Verifier with a network layer which
// handles requests/responses and their encoding/decoding.
// Requests are handled concurrently; batches are closed by the
// verifier's scheduler as they fill up or time out.
type BVerifyServer struct {
	*application.ServerBase
	verifier *verifier.Verifier
	db       kv.DB
}

// NewBVerifyServer creates a new bverify server from a loaded config.
// If the config names a commitment database, every commitment
// is persisted to it.
func NewBVerifyServer(conf *Config) (*BVerifyServer, error) {
	logger := application.NewNopLogger()
	if conf.Logger != nil {
		var err error
		if logger, err = application.NewLogger(conf.Logger); err != nil {
			return nil, err
		}
	}
	enc, err := conf.Policies.wireEncoding()
	if err != nil {
		return nil, err
	}
	vconf, err := conf.Policies.verifierConfig(conf.LoadedHistoryLength)
	if err != nil {
		return nil, err
	}

	var db kv.DB
	var sinks []commitlog.Sink
	if path := conf.Policies.CommitmentDBPath; path != "" {
		if db, err = leveldbkv.OpenDB(path); err != nil {
			return nil, err
		}
		sink, err := commitmentkv.NewSink(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		sinks = append(sinks, sink)
	}

	v, err := verifier.New(vconf, conf.Policies.entries, conf.Policies.signKey,
		logger.Named("verifier").Sugar(), sinks...)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	// determine this server's request permissions
	perms := make(map[*application.ServerAddress]map[int]bool)
	for _, addr := range conf.Addresses {
		perms[addr.ServerAddress] = map[int]bool{
			protocol.ProveADSRootType:        true,
			protocol.ProveADSRootAtType:      true,
			protocol.ProofUpdatesType:        true,
			protocol.CommitmentsType:         true,
			protocol.PerformUpdateType:       addr.AllowUpdates,
			protocol.AuthorizationUpdateType: addr.AllowUpdates,
		}
	}

	return &BVerifyServer{
		ServerBase: application.NewServerBase(conf.CommonConfig, "Listen",
			perms, enc, logger),
		verifier: v,
		db:       db,
	}, nil
}

// Verifier returns the verifier that serves the server's requests.
func (server *BVerifyServer) Verifier() *verifier.Verifier {
	return server.verifier
}

// HandleRequests validates the request message and passes it to the
// appropriate operation handler according to the request type.
func (server *BVerifyServer) HandleRequests(req *protocol.Request) *protocol.Response {
	v := server.verifier
	switch req.Type {
	case protocol.PerformUpdateType:
		if msg, ok := req.Request.(*protocol.UpdateRequest); ok {
			return acceptedResponse(v.PerformUpdate(msg))
		}
	case protocol.AuthorizationUpdateType:
		if msg, ok := req.Request.(*protocol.AuthorizationUpdateRequest); ok {
			return acceptedResponse(v.PerformAuthorizationUpdate(msg))
		}
	case protocol.ProveADSRootType:
		if msg, ok := req.Request.(*protocol.ProveADSRootRequest); ok {
			return proofResponse(v.ProveADSRoot(msg.ADSID))
		}
	case protocol.ProveADSRootAtType:
		if msg, ok := req.Request.(*protocol.ProveADSRootAtRequest); ok {
			return proofResponse(v.ProveADSRootAt(msg.ADSID, msg.Seq))
		}
	case protocol.ProofUpdatesType:
		if msg, ok := req.Request.(*protocol.ProofUpdatesRequest); ok {
			updates, err := v.GetProofUpdates(msg.ADSID, msg.From)
			if err != nil {
				return errorResponse(err)
			}
			return protocol.NewProofUpdatesResponse(updates)
		}
	case protocol.CommitmentsType:
		if msg, ok := req.Request.(*protocol.CommitmentsRequest); ok {
			cs, err := v.CommitmentsFrom(msg.From)
			if err != nil {
				return errorResponse(err)
			}
			return protocol.NewCommitmentsResponse(cs)
		}
	}

	return protocol.NewErrorResponse(protocol.ErrMalformedMessage)
}

func acceptedResponse(batch uint64, code protocol.ErrorCode) *protocol.Response {
	if code != protocol.ReqSuccess {
		return protocol.NewErrorResponse(code)
	}
	return protocol.NewUpdateAcceptedResponse(batch)
}

func proofResponse(proof *protocol.ADSProof, err error) *protocol.Response {
	if err != nil {
		return errorResponse(err)
	}
	return protocol.NewADSProofResponse(proof)
}

func errorResponse(err error) *protocol.Response {
	var code protocol.ErrorCode
	if errors.As(err, &code) {
		return protocol.NewErrorResponse(code)
	}
	return protocol.NewErrorResponse(protocol.ErrInternalServer)
}

// Run implements the main functionality of the server.
// It listens for all declared connections with corresponding
// permissions. If any address cannot be listened on, the addresses
// started so far are closed again.
func (server *BVerifyServer) Run(addrs []*Address) error {
	hasUpdatePerm := false
	for _, addr := range addrs {
		hasUpdatePerm = hasUpdatePerm || addr.AllowUpdates
		if err := server.ListenAndHandle(addr.ServerAddress, server.HandleRequests); err != nil {
			server.ServerBase.Shutdown()
			return err
		}
	}

	if !hasUpdatePerm {
		server.Logger().Warn("None of the addresses accept updates")
	}
	return nil
}

// Shutdown closes every listener, seals the updates admitted so far
// and closes the commitment database.
func (server *BVerifyServer) Shutdown() error {
	err := server.ServerBase.Shutdown()
	server.verifier.Shutdown()
	if server.db != nil {
		err = errors.Join(err, server.db.Close())
	}
	server.Logger().Sync()
	return err
}
