package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHash(t *testing.T) {
	hash, err := Hash("testPassword123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$") && !strings.HasPrefix(hash, "$2b$") {
		t.Errorf("Hash() doesn't look like bcrypt format: %s", hash)
	}

	// 同一密码因 salt 不同产生不同哈希
	hash2, _ := Hash("testPassword123")
	if hash == hash2 {
		t.Error("Same password should produce different hashes due to salt")
	}

	if _, err := Hash(""); err == nil {
		t.Error("Hash(\"\") should fail")
	}
}

func TestCompare(t *testing.T) {
	hash, _ := Hash("Password123")

	tests := []struct {
		password string
		want     bool
	}{
		{"Password123", true},
		{"password123", false},
		{"PASSWORD123", false},
		{"", false},
		{"Password123 ", false},
	}
	for _, tt := range tests {
		if got := Compare(tt.password, hash); got != tt.want {
			t.Errorf("Compare(%q) = %v, want %v", tt.password, got, tt.want)
		}
	}

	if Compare("anything", "") {
		t.Error("Compare with empty hash should be false")
	}
}

func TestNeedsRehash(t *testing.T) {
	hash, _ := Hash("testPassword")
	if NeedsRehash(hash) {
		t.Error("NeedsRehash() for same cost hash returned true")
	}

	low, err := bcrypt.GenerateFromPassword([]byte("testPassword"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}
	if !NeedsRehash(string(low)) {
		t.Error("NeedsRehash() for low cost hash returned false")
	}

	for _, invalid := range []string{"invalid-hash-format", "$2a$10$xxx"} {
		if !NeedsRehash(invalid) {
			t.Errorf("NeedsRehash(%q) returned false", invalid)
		}
	}
}
