package certstore

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/lino/linotls"
)

func TestInMemoryStore_Store(t *testing.T) {
	store := NewInMemoryStore()

	err := store.Store("example.com", linotls.Certificate{Cert: []byte("cert")})
	require.NoError(t, err)

	err = store.Store("example.com", linotls.Certificate{Cert: []byte("other")})
	require.NoError(t, err)

	crt, err := store.Load("example.com")
	require.NoError(t, err)
	require.Equal(t, []byte("other"), crt.Cert)
}

func TestInMemoryStore_Load(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.Store("example.com", linotls.Certificate{Key: []byte("key")}))

	crt, err := store.Load("example.com")
	require.NoError(t, err)
	require.Equal(t, []byte("key"), crt.Key)

	crt, err = store.Load("unknown.com")
	require.NoError(t, err)
	require.Nil(t, crt)
}

func TestInMemoryStore_Delete(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.Store("example.com", linotls.Certificate{}))

	require.NoError(t, store.Delete("example.com"))
	require.NoError(t, store.Delete("example.com"))

	crt, err := store.Load("example.com")
	require.NoError(t, err)
	require.Nil(t, crt)
}

func TestInMemoryStore_Range(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.Store("a.com", linotls.Certificate{}))
	require.NoError(t, store.Store("b.com", linotls.Certificate{}))

	names := map[string]struct{}{}

	err := store.Range(func(name string, crt linotls.Certificate) bool {
		names[name] = struct{}{}
		return true
	})
	require.NoError(t, err)
	require.Len(t, names, 2)

	count := 0

	err = store.Range(func(name string, crt linotls.Certificate) bool {
		count++
		return false
	})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
