package hashtable

import "testing"

func TestSetGetDel(t *testing.T) {
	ht := MkHash(4)
	if _, ok := ht.Get(1); ok {
		t.Fatal("empty table returned a hit")
	}
	ht.Set(1, "one")
	ht.Set(2, "two")
	v, ok := ht.Get(1)
	if !ok || v != "one" {
		t.Fatalf("Get(1) = %v, %v", v, ok)
	}
	if ht.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", ht.Size())
	}
	ht.Del(1)
	if _, ok := ht.Get(1); ok {
		t.Fatal("key survived Del")
	}
	if ht.Size() != 1 {
		t.Fatalf("Size() = %d after Del, want 1", ht.Size())
	}
}

func TestSetRejectsDuplicate(t *testing.T) {
	ht := MkHash(4)
	ht.Set("app", 1)
	_, inserted := ht.Set("app", 2)
	if inserted {
		t.Fatal("Set overwrote an existing key instead of rejecting it")
	}
	v, _ := ht.Get("app")
	if v != 1 {
		t.Fatalf("value changed after rejected Set: got %v", v)
	}
}

func TestDelOfMissingKeyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Del of a missing key did not panic")
		}
	}()
	MkHash(4).Del(42)
}
