package kdf

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"testing"

	"github.com/ikeswand/ikeswand/internal/crypto"
)

func refHMAC(key, data []byte) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func TestSKEYIDLadder(t *testing.T) {
	prf := crypto.HMACSHA1PRF()
	ni := []byte("initiator-nonce")
	nr := []byte("responder-nonce")
	dhSecret := []byte("shared-secret-gxy")
	ckyI := bytes.Repeat([]byte{0x11}, 8)
	ckyR := bytes.Repeat([]byte{0x22}, 8)

	skeyid := PreSharedKeySKEYID(prf, []byte("psk"), ni, nr)
	wantSkeyid := refHMAC([]byte("psk"), append(append([]byte{}, ni...), nr...))
	if !bytes.Equal(skeyid, wantSkeyid) {
		t.Fatalf("SKEYID mismatch")
	}

	d := SKEYIDd(prf, skeyid, dhSecret, ckyI, ckyR)
	wantD := refHMAC(skeyid, append(append(append(append([]byte{}, dhSecret...), ckyI...), ckyR...), 0))
	if !bytes.Equal(d, wantD) {
		t.Fatalf("SKEYID_d mismatch")
	}

	a := SKEYIDa(prf, skeyid, d, dhSecret, ckyI, ckyR)
	wantA := refHMAC(skeyid, append(append(append(append(append([]byte{}, d...), dhSecret...), ckyI...), ckyR...), 1))
	if !bytes.Equal(a, wantA) {
		t.Fatalf("SKEYID_a mismatch")
	}

	e := SKEYIDe(prf, skeyid, a, dhSecret, ckyI, ckyR)
	wantE := refHMAC(skeyid, append(append(append(append(append([]byte{}, a...), dhSecret...), ckyI...), ckyR...), 2))
	if !bytes.Equal(e, wantE) {
		t.Fatalf("SKEYID_e mismatch")
	}

	// Each derived key must differ from its parent's inputs; a ladder that
	// collapsed to the same bytes at every rung would leak no security
	// margin between SA scopes.
	if bytes.Equal(d, a) || bytes.Equal(a, e) || bytes.Equal(d, e) {
		t.Fatalf("derived keys must be distinct: d=%x a=%x e=%x", d, a, e)
	}
}

func TestAppendixBKeymatShortEnough(t *testing.T) {
	prf := crypto.HMACSHA1PRF()
	skeyidE := bytes.Repeat([]byte{0xAB}, sha1.Size)

	got := AppendixBKeymat(prf, skeyidE, 10)
	if !bytes.Equal(got, skeyidE[:10]) {
		t.Fatalf("AppendixBKeymat: got %x, want prefix of skeyidE", got)
	}
}

func TestAppendixBKeymatStretches(t *testing.T) {
	prf := crypto.HMACSHA1PRF()
	skeyidE := bytes.Repeat([]byte{0xCD}, sha1.Size)
	requiredLen := sha1.Size*2 + 3 // forces at least two PRF rounds

	got := AppendixBKeymat(prf, skeyidE, requiredLen)
	if len(got) != requiredLen {
		t.Fatalf("len(got) = %d, want %d", len(got), requiredLen)
	}

	k1 := refHMAC(skeyidE, []byte{0})
	k2 := refHMAC(skeyidE, k1)
	want := append(append([]byte{}, k1...), k2...)[:requiredLen]
	if !bytes.Equal(got, want) {
		t.Fatalf("AppendixBKeymat stretch mismatch:\ngot  %x\nwant %x", got, want)
	}
}
