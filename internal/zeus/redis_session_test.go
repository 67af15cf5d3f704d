package zeus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vantage/internal/config"
)

func TestNewRedisSessionStoreDisabledReturnsNil(t *testing.T) {
	s, err := NewRedisSessionStore(config.RedisConfig{Enabled: false}, 10, 0)
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestNewRedisSessionStoreEnabledWithoutAddrErrors(t *testing.T) {
	_, err := NewRedisSessionStore(config.RedisConfig{Enabled: true}, 10, 0)
	require.Error(t, err)
}

func TestNilRedisSessionStoreMethodsAreNoops(t *testing.T) {
	var s *RedisSessionStore
	s.AddTurn("sess", "q", "document_search", nil) // must not panic
	require.Equal(t, SessionContext{}, s.Derive("sess"))
	require.NoError(t, s.Close())
}

func TestRedisSessionStoreSatisfiesSessionBacker(t *testing.T) {
	var _ SessionBacker = (*RedisSessionStore)(nil)
	var _ SessionBacker = (*SessionStore)(nil)
}
