package daemon

import (
	"github.com/ikeswand/ikeswand/internal/crypto"
	"github.com/ikeswand/ikeswand/internal/engine"
	"github.com/ikeswand/ikeswand/internal/kdf"
	"github.com/ikeswand/ikeswand/internal/state"
)

// deriveChildKeys stretches a child SA's encryption+authentication key
// material out of its parent IKE SA's already-established SharedKey,
// using the same Appendix B PRF-chaining construction
// internal/kdf implements for the IKEv1 ladder (orig:
// ikev1_prf.c's compute_proto_keymat, reused here since a full SA-payload
// keymat negotiation stays out of scope while the PRF stretching primitive
// itself is in scope). 32 bytes covers a 16-byte
// AES-CBC key plus a 16-byte HMAC-SHA256-128 key.
func (d *Daemon) deriveChildKeys(child *state.State) [32]byte {
	var out [32]byte

	parent, ok := d.Engine.States.BySerial(child.ParentSerial)
	if !ok || parent.SharedKey.Len() == 0 {
		return out // an all-zero key is a loud, detectable failure rather than a silent short-read
	}

	keymat := kdf.AppendixBKeymat(d.prf, parent.SharedKey.Bytes(), len(out))
	copy(out[:], keymat)
	return out
}

// OnDHComplete collects a finished Diffie-Hellman task's shared secret and
// assigns it as the owning state's established SharedKey — the engine,
// not the worker, decides what the secret means. A fuller
// IKEv2 SKEYSEED/SK_* ladder or IKEv1 SKEYID_* ladder built on top of this
// secret is exercised directly by internal/kdf's own tests; this handler
// only owns the hand-off from the crypto pipeline back into the state
// table.
func (d *Daemon) OnDHComplete(e *engine.Engine, st *state.State, task *crypto.DHTask) {
	_, secret, err := task.Complete()
	if err != nil {
		d.logState(st).WithError(err).Warn("daemon: dh task failed")
		d.deleteState(e, st.Serial)
		return
	}

	st.SharedKey = crypto.NewSymKey(secret)
	st.DHSecret = nil
	d.logState(st).Debug("daemon: dh exchange complete, shared secret established")
}
