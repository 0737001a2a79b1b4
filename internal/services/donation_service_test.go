package services

import (
	"strings"
	"testing"
)

func TestDonorHash(t *testing.T) {
	a := DonorHash("Donor@Example.COM")
	b := DonorHash("  donor@example.com ")
	if a == nil || b == nil {
		t.Fatal("hash nil for non-empty email")
	}
	if *a != *b {
		t.Error("hash not normalized across case and whitespace")
	}
	if len(*a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(*a))
	}

	if DonorHash("") != nil {
		t.Error("anonymous email produced a hash")
	}
	if DonorHash("   ") != nil {
		t.Error("blank email produced a hash")
	}
}

func TestNewMemoID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewMemoID()
		if !strings.HasPrefix(id, "EUN-") {
			t.Fatalf("memo id %q missing prefix", id)
		}
		if len(id) != len("EUN-")+8 {
			t.Fatalf("memo id %q has unexpected length", id)
		}
		if seen[id] {
			t.Fatalf("memo id %q repeated", id)
		}
		seen[id] = true
	}
}
