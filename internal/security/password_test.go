package security

import "testing"

func TestHashAndCheck(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")

	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	if hash == "correct horse battery staple" {
		t.Fatalf("hash must not be the plaintext")
	}

	if err := CheckPassword(hash, "correct horse battery staple"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}

	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Errorf("wrong password accepted")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h1, err := HashPassword("same-password")
	if err != nil {
		t.Fatal(err)
	}

	h2, err := HashPassword("same-password")
	if err != nil {
		t.Fatal(err)
	}

	if h1 == h2 {
		t.Fatalf("two hashes of the same password must differ")
	}
}

func TestCheckDummyPasswordNeverPanics(t *testing.T) {
	// only exists to equalize timing; must be safe on any input
	CheckDummyPassword("")
	CheckDummyPassword("anything at all")
}
