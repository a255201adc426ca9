package crypto

import "testing"

func TestCurve25519RoundTrip(t *testing.T) {
	g := Curve25519Group()

	privA, pubA, err := g.GeneratePrivate()
	if err != nil {
		t.Fatalf("GeneratePrivate (A): %v", err)
	}
	privB, pubB, err := g.GeneratePrivate()
	if err != nil {
		t.Fatalf("GeneratePrivate (B): %v", err)
	}

	secretA, err := g.SharedSecret(privA, pubB)
	if err != nil {
		t.Fatalf("SharedSecret (A): %v", err)
	}
	secretB, err := g.SharedSecret(privB, pubA)
	if err != nil {
		t.Fatalf("SharedSecret (B): %v", err)
	}

	if string(secretA) != string(secretB) {
		t.Fatalf("shared secrets disagree:\nA: %x\nB: %x", secretA, secretB)
	}
}

func TestMODP2048RoundTrip(t *testing.T) {
	g := MODP2048()

	privA, pubA, err := g.GeneratePrivate()
	if err != nil {
		t.Fatalf("GeneratePrivate (A): %v", err)
	}
	privB, pubB, err := g.GeneratePrivate()
	if err != nil {
		t.Fatalf("GeneratePrivate (B): %v", err)
	}

	secretA, err := g.SharedSecret(privA, pubB)
	if err != nil {
		t.Fatalf("SharedSecret (A): %v", err)
	}
	secretB, err := g.SharedSecret(privB, pubA)
	if err != nil {
		t.Fatalf("SharedSecret (B): %v", err)
	}

	if string(secretA) != string(secretB) {
		t.Fatalf("shared secrets disagree:\nA: %x\nB: %x", secretA, secretB)
	}
}

func TestMODP2048RejectsOutOfRangePublic(t *testing.T) {
	g := MODP2048()
	priv, _, err := g.GeneratePrivate()
	if err != nil {
		t.Fatalf("GeneratePrivate: %v", err)
	}

	if _, err := g.SharedSecret(priv, []byte{0}); err == nil {
		t.Fatal("SharedSecret: want error for zero peer public value, got nil")
	}
}

func TestHMACPRFSizes(t *testing.T) {
	if got := HMACSHA1PRF().Size(); got != 20 {
		t.Fatalf("HMACSHA1PRF size = %d, want 20", got)
	}
	if got := HMACSHA256PRF().Size(); got != 32 {
		t.Fatalf("HMACSHA256PRF size = %d, want 32", got)
	}
}

func TestSymKeyZero(t *testing.T) {
	k := NewSymKey([]byte{1, 2, 3, 4})
	k.Zero()
	for i, b := range k.Bytes() {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0 after Zero", i, b)
		}
	}
}
