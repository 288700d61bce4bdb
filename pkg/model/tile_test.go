package model

import (
	"testing"
)

func TestKey(t *testing.T) {
	a := NewAddress(3, 5, 4)

	if a.Key() != "3-5-4" {
		t.Errorf("wrong key %s", a.Key())
	}

	b, err := ParseKey(a.Key())
	if err != nil {
		t.Fatal(err)
	}

	if b != a {
		t.Errorf("got %v, want %v", b, a)
	}

	for _, s := range []string{"", "1-2", "a-b-c", "4-0-2", "1-2-3-4"} {
		if _, err := ParseKey(s); err == nil {
			t.Errorf("%q must not parse", s)
		}
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		a    Address
		want bool
	}{
		{NewAddress(0, 0, 0), true},
		{NewAddress(1, 0, 0), false},
		{NewAddress(3, 3, 2), true},
		{NewAddress(4, 0, 2), false},
		{NewAddress(0, -1, 2), false},
		{NewAddress(0, 0, -1), false},
	}

	for _, tt := range tests {
		if got := tt.a.Valid(); got != tt.want {
			t.Errorf("%v valid = %v, want %v", tt.a, got, tt.want)
		}
	}
}

func TestFlipAndParent(t *testing.T) {
	a := NewAddress(5, 1, 3)

	if a.Flip() != 6 {
		t.Errorf("flip: got %d, want 6", a.Flip())
	}

	if p := a.Parent(1); p != NewAddress(2, 0, 2) {
		t.Errorf("parent: got %v", p)
	}

	if p := a.Parent(10); p != NewAddress(0, 0, 0) {
		t.Errorf("root parent: got %v", p)
	}

	if FromMaptile(a.Maptile()) != a {
		t.Error("maptile round trip failed")
	}
}

func TestSeq(t *testing.T) {
	t1 := NewTile(NewAddress(0, 0, 0), nil)
	t2 := NewTile(NewAddress(0, 0, 0), nil)

	if t2.Seq <= t1.Seq {
		t.Errorf("sequence must grow: %d, %d", t1.Seq, t2.Seq)
	}

	if t1.Loaded() {
		t.Error("tile without image must not be loaded")
	}
}
