package memory

import (
	"testing"

	s "github.com/kestrelbt/kestrel/storage"

	"github.com/kestrelbt/kestrel/pkg/alloc"
)

func createNew() s.Store {
	store, err := New(Config{
		TorrentShardCount: 64,
		PeerShardCount:    64,
	}, alloc.New())
	if err != nil {
		panic(err)
	}
	return store
}

func TestTorrentStore(t *testing.T)        { s.TestTorrentStore(t, createNew()) }
func TestCheckTokenExclusion(t *testing.T) { s.TestCheckTokenExclusion(t, createNew()) }
func TestPeerStore(t *testing.T)           { s.TestPeerStore(t, createNew()) }
func TestPathStore(t *testing.T)           { s.TestPathStore(t, createNew()) }
func TestPathStoreConcurrentInsert(t *testing.T) {
	s.TestPathStoreConcurrentInsert(t, createNew())
}

func TestDefaultShardCounts(t *testing.T) {
	store, err := New(Config{}, alloc.New())
	if err != nil {
		t.Fatal(err)
	}
	if store == nil {
		t.Fatal("expected a store")
	}
}
