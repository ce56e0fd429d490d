package hashmap

import (
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPutGetDelete(t *testing.T) {
	m := New[int]()
	for i := 0; i < 5000; i++ {
		m.Put(fmt.Sprintf("key %d", i), i)
	}
	for i := 1000; i < 2000; i++ {
		m.Delete(fmt.Sprintf("key %d", i))
	}
	for i := 1500; i < 1600; i++ {
		m.Put(fmt.Sprintf("key %d", i), -i)
	}
	for i := 6000; i < 7000; i++ {
		m.Put(fmt.Sprintf("key %d", i), i)
	}

	for i := 0; i < 1000; i++ {
		if v, ok := m.Get(fmt.Sprintf("key %d", i)); !ok || v != i {
			t.Fatalf("key %d: got %d, %v", i, v, ok)
		}
	}
	for i := 1000; i < 1500; i++ {
		if m.Has(fmt.Sprintf("key %d", i)) {
			t.Fatalf("key %d should be deleted", i)
		}
	}
	for i := 1500; i < 1600; i++ {
		if v := m.Lookup(fmt.Sprintf("key %d", i)); v != -i {
			t.Fatalf("key %d: got %d, want %d", i, v, -i)
		}
	}
	if m.Has("no such key") {
		t.Fatal("unexpected key")
	}
	if got, want := m.Len(), 5000-1000+100+1000; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
}

func TestTombstoneReuseKeepsKeysUnique(t *testing.T) {
	m := New[string]()
	m.Put("a", "1")
	m.Put("b", "2")
	m.Delete("a")
	m.Put("b", "3")

	var keys []string
	m.Range(func(k, v string) bool {
		keys = append(keys, k+"="+v)
		return true
	})
	sort.Strings(keys)
	if diff := cmp.Diff([]string{"b=3"}, keys); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestRehashKeepsUsageBelowLowWatermark(t *testing.T) {
	m := New[bool]()
	for i := 0; i < 100; i++ {
		m.Put(fmt.Sprint(i), true)
	}
	if m.Len()*100/m.Cap() >= highWatermark {
		t.Errorf("usage %d/%d above high watermark", m.Len(), m.Cap())
	}
}

func TestZeroValue(t *testing.T) {
	var m Map[int]
	if _, ok := m.Get("x"); ok {
		t.Fatal("empty map reported a key")
	}
	m.Delete("x")
	m.Put("x", 1)
	if m.Lookup("x") != 1 {
		t.Fatal("put on zero map failed")
	}
}
