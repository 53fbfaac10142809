package token

import (
	"testing"
	"time"
)

type fakeMPCB struct {
	acquired int
	syn      *SynTable
}

func (f *fakeMPCB) Acquire()            { f.acquired++ }
func (f *fakeMPCB) SynTable() *SynTable { return f.syn }

func TestRegistryInsertFindRemove(t *testing.T) {
	r := NewRegistry()
	m := &fakeMPCB{syn: NewSynTable()}

	if err := r.Insert(1, m); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := r.Insert(1, m); err != ErrTokenCollision {
		t.Fatalf("Insert duplicate: got %v, want ErrTokenCollision", err)
	}

	got, ok := r.Find(1)
	if !ok || got != m {
		t.Fatalf("Find(1) = %v, %v", got, ok)
	}
	if m.acquired != 1 {
		t.Errorf("Find did not Acquire: acquired=%d", m.acquired)
	}

	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	r.Remove(1)
	if _, ok := r.Find(1); ok {
		t.Fatal("Find after Remove should fail")
	}

	// Idempotent: removing an absent token is a no-op (§8 idempotence).
	r.Remove(1)
}

func TestRegistryRemoveCleansPendingJoins(t *testing.T) {
	r := NewRegistry()
	global := NewPendingJoinTable()
	syn := NewSynTable()
	m := &fakeMPCB{syn: syn}

	if err := r.Insert(7, m); err != nil {
		t.Fatal(err)
	}

	key := PeerKey{}
	pj := NewPendingJoin(syn, global, key, 7, 1, 2, 3, time.Time{}, 4, 5)
	if _, ok := global.Find(key); !ok {
		t.Fatal("pending join missing from global table")
	}

	r.Remove(7)

	if _, ok := global.Find(key); ok {
		t.Error("Registry.Remove should have removed the pending join from the global table")
	}
	_ = pj
}
