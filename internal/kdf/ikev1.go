// Package kdf implements the IKEv1 key-derivation ladder: SKEYID and its
// three derived keys, and RFC 2409 Appendix B key-material stretching
// (orig: programs/pluto/ikev1_prf.c).
package kdf

import "github.com/ikeswand/ikeswand/internal/crypto"

// SignatureSKEYID computes SKEYID = prf(Ni_b | Nr_b, g^xy), used for
// signature-authenticated Main/Aggressive Mode (ikev1_signature_skeyid).
func SignatureSKEYID(prf crypto.PRF, ni, nr, dhSecret []byte) []byte {
	key := concat(ni, nr)
	return prf.Compute(key, dhSecret)
}

// PreSharedKeySKEYID computes SKEYID = prf(psk, Ni_b | Nr_b), used for PSK
// authentication (ikev1_pre_shared_key_skeyid).
func PreSharedKeySKEYID(prf crypto.PRF, psk, ni, nr []byte) []byte {
	return prf.Compute(psk, concat(ni, nr))
}

// SKEYIDd computes SKEYID_d = prf(SKEYID, g^xy | CKY-I | CKY-R | 0), the
// keying material parent for non-ISAKMP SAs (ikev1_skeyid_d).
func SKEYIDd(prf crypto.PRF, skeyid, dhSecret []byte, ckyI, ckyR []byte) []byte {
	return prf.Compute(skeyid, concat(dhSecret, ckyI, ckyR, []byte{0}))
}

// SKEYIDa computes SKEYID_a = prf(SKEYID, SKEYID_d | g^xy | CKY-I | CKY-R | 1),
// the ISAKMP SA authentication key (ikev1_skeyid_a).
func SKEYIDa(prf crypto.PRF, skeyid, skeyidD, dhSecret []byte, ckyI, ckyR []byte) []byte {
	return prf.Compute(skeyid, concat(skeyidD, dhSecret, ckyI, ckyR, []byte{1}))
}

// SKEYIDe computes SKEYID_e = prf(SKEYID, SKEYID_a | g^xy | CKY-I | CKY-R | 2),
// the ISAKMP SA encryption key (ikev1_skeyid_e).
func SKEYIDe(prf crypto.PRF, skeyid, skeyidA, dhSecret []byte, ckyI, ckyR []byte) []byte {
	return prf.Compute(skeyid, concat(skeyidA, dhSecret, ckyI, ckyR, []byte{2}))
}

// AppendixBKeymat stretches SKEYID_e out to requiredLen bytes of key
// material for a cipher whose key is longer than the PRF's native output
// (RFC 2409 Appendix B, orig: appendix_b_keymat_e). If skeyidE is already
// long enough, it's returned sliced down, never padded.
func AppendixBKeymat(prf crypto.PRF, skeyidE []byte, requiredLen int) []byte {
	if len(skeyidE) >= requiredLen {
		return skeyidE[:requiredLen]
	}

	// K1 = prf(SKEYID_e, 0)
	k := prf.Compute(skeyidE, []byte{0})
	keymat := append([]byte(nil), k...)

	for len(keymat) < requiredLen {
		// Kn = prf(SKEYID_e, Kn-1)
		next := prf.Compute(skeyidE, k)
		clear(k)
		k = next
		keymat = append(keymat, k...)
	}
	clear(k)
	clear(keymat[requiredLen:])

	return keymat[:requiredLen]
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
