package convo

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitRequiresPool(t *testing.T) {
	s := New(nil)
	err := s.Init(context.Background())
	require.Error(t, err)
}

func TestNullableJSONEmptyIsNil(t *testing.T) {
	require.Nil(t, nullableJSON(nil))
	require.Nil(t, nullableJSON(json.RawMessage{}))
}

func TestNullableJSONPassesThroughBytes(t *testing.T) {
	raw := json.RawMessage(`{"a":1}`)
	out := nullableJSON(raw)
	b, ok := out.([]byte)
	require.True(t, ok)
	require.JSONEq(t, `{"a":1}`, string(b))
}

func TestMessageDefaultsRoleConstants(t *testing.T) {
	require.Equal(t, Role("user"), RoleUser)
	require.Equal(t, Role("assistant"), RoleAssistant)
}
