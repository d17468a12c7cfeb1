package keystore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func samplePeerKeys(tag byte) *PeerKeys {
	k := &PeerKeys{Identifier: "controller-1"}
	for i := range k.SecretKey {
		k.SecretKey[i] = tag
	}
	for i := range k.PublicKey {
		k.PublicKey[i] = tag + 1
	}
	for i := range k.DevicePublicKey {
		k.DevicePublicKey[i] = tag + 2
	}
	return k
}

func testStoreRoundTrip(t *testing.T, s Store) {
	_, err := s.Load("peer-a")
	require.Error(t, err)
	require.IsType(t, ErrNotFound{}, err)

	want := samplePeerKeys(0x10)
	require.NoError(t, s.Save("peer-a", want))

	got, err := s.Load("peer-a")
	require.NoError(t, err)
	require.Equal(t, want, got)

	ids, err := s.List()
	require.NoError(t, err)
	require.Equal(t, []string{"peer-a"}, ids)

	require.NoError(t, s.Remove("peer-a"))
	_, err = s.Load("peer-a")
	require.Error(t, err)

	ids, err = s.List()
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	testStoreRoundTrip(t, NewMemoryStore())
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairings.json")
	testStoreRoundTrip(t, NewFileStore(path))
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairings.json")
	s1 := NewFileStore(path)
	require.NoError(t, s1.Save("peer-a", samplePeerKeys(0x20)))

	s2 := NewFileStore(path)
	got, err := s2.Load("peer-a")
	require.NoError(t, err)
	require.Equal(t, samplePeerKeys(0x20), got)
}

func TestFileStoreMissingFileIsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairings.json")
	s := NewFileStore(path)
	ids, err := s.List()
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "pairings.sqlite"))
	require.NoError(t, err)
	defer s.Close()

	testStoreRoundTrip(t, s)
}

func TestSQLiteStoreSaveIsUpsert(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save("peer-a", samplePeerKeys(0x30)))
	require.NoError(t, s.Save("peer-a", samplePeerKeys(0x40)))

	got, err := s.Load("peer-a")
	require.NoError(t, err)
	require.Equal(t, samplePeerKeys(0x40), got)

	ids, err := s.List()
	require.NoError(t, err)
	require.Equal(t, []string{"peer-a"}, ids)
}
