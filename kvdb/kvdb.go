// Package kvdb serves a key-value database over UDP. A request containing
// "=" is an insert of key=value split on the first "="; anything else is a
// retrieve answered with key=value.
package kvdb

import (
	"context"
	"strings"

	"github.com/cyberinferno/protohackers/kvstore"
	"github.com/cyberinferno/protohackers/logger"
	"github.com/cyberinferno/protohackers/udpserver"
)

// MaxRequestSize is the first request size that is dropped.
const MaxRequestSize = 1000

const versionKey = "version"

// DB answers requests against a Store.
type DB struct {
	store   kvstore.Store
	version string
	log     logger.Logger
}

// New returns a DB whose read-only "version" key reports version.
func New(store kvstore.Store, version string, log logger.Logger) *DB {
	return &DB{store: store, version: version, log: log}
}

// Handle applies one request. It returns the reply and whether one should
// be sent; inserts are silent.
func (db *DB) Handle(ctx context.Context, req string) (string, bool) {
	if key, value, ok := strings.Cut(req, "="); ok {
		if key == versionKey {
			return "", false
		}

		if err := db.store.Set(ctx, key, value); err != nil {
			db.log.Error("insert failed", logger.Field{Key: "key", Value: key}, logger.Field{Key: "error", Value: err.Error()})
		}
		return "", false
	}

	if req == versionKey {
		return versionKey + "=" + db.version, true
	}

	value, _, err := db.store.Get(ctx, req)
	if err != nil {
		db.log.Error("retrieve failed", logger.Field{Key: "key", Value: req}, logger.Field{Key: "error", Value: err.Error()})
		return "", false
	}

	return req + "=" + value, true
}

// NewServer returns a UDP server answering from db.
func NewServer(addr string, db *DB, log logger.Logger) *udpserver.UDPServer {
	var srv *udpserver.UDPServer
	srv = udpserver.New("kvdb", addr, log, func(pkt udpserver.Packet) {
		if len(pkt.Data) >= MaxRequestSize {
			return
		}

		reply, ok := db.Handle(context.Background(), string(pkt.Data))
		if !ok || len(reply) >= MaxRequestSize {
			return
		}

		_ = srv.WriteTo([]byte(reply), pkt.Addr)
	})

	return srv
}
