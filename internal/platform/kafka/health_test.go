package kafka

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092,a:9092 "))
	assert.Nil(t, SplitBrokers(""))
}

func TestHealthChecker(t *testing.T) {
	t.Run("unconfigured brokers fail", func(t *testing.T) {
		assert.Error(t, NewHealthChecker("").Check(context.Background()))
	})

	t.Run("reachable broker passes", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()
		go func() {
			conn, err := ln.Accept()
			if err == nil {
				_ = conn.Close()
			}
		}()

		assert.NoError(t, NewHealthChecker("127.0.0.1:1,"+ln.Addr().String()).Check(context.Background()))
	})
}
