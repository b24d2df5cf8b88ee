package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectStoresCopy(t *testing.T) {
	t.Parallel()

	s := New()
	payload := []byte("report body")
	uri, err := s.PutObject(context.Background(), "runs/abc.json", "application/json", payload)
	require.NoError(t, err)
	require.Equal(t, "mem://runs/abc.json", uri)

	// Mutating the caller's slice must not corrupt the stored object.
	payload[0] = 'X'
	got, ok := s.Get("runs/abc.json")
	require.True(t, ok)
	require.Equal(t, []byte("report body"), got)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.PutObject(context.Background(), "", "application/json", []byte("x"))
	require.Error(t, err)

	_, ok := s.Get("missing")
	require.False(t, ok)
}
