package testutil

import (
	"net"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type RedisServer struct {
	// In-memory server. Use FastForward to expire keys
	Mini   *miniredis.Miniredis
	Client *redis.Client
}

// Start in-memory redis and a client connected to it
// Both are closed when test finishes
func StartRedis(t *testing.T) RedisServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:                  mr.Addr(),
		ContextTimeoutEnabled: true,
	})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return RedisServer{Mini: mr, Client: client}
}

// URL in the form the server config accepts
func (s RedisServer) URL() string {
	return "redis://" + s.Mini.Addr() + "/0"
}

// FreeAddr returns a loopback address nobody listens on at the moment
func FreeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	return addr
}
