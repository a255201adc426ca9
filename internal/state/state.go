// Package state implements the Exchange State entity and the state table
// that indexes it by serial and by IKE SPI pair.
package state

import (
	"net/netip"
	"sync"

	"github.com/ikeswand/ikeswand/internal/crypto"
	"github.com/ikeswand/ikeswand/internal/wire"
)

// Kind distinguishes a parent IKE SA from a child (IPsec) SA.
type Kind int

const (
	KindIKE Kind = iota
	KindChild
)

// Role is a state's negotiation role. OriginalInitiator/OriginalResponder
// are frozen at birth; Initiator/Responder reflect the current rekey.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
	RoleOriginalInitiator
	RoleOriginalResponder
)

// Label is one of the finite exchange-state labels this daemon enumerates.
type Label int

const (
	LabelNone Label = iota
	MainI1
	MainI2
	MainI3
	MainI4
	MainR1
	MainR2
	MainR3
	AggrI1
	AggrI2
	AggrR1
	AggrR2
	QuickI1
	QuickI2
	QuickR1
	QuickR2
	ParentI1
	ParentI2
	ParentR1
	ParentR2
	V2IPsecI
	V2IPsecR
	LabelDeleted // terminal
)

// SPIPair identifies an IKE exchange on the wire. Zero responder SPI is
// valid before the responder has replied.
type SPIPair struct {
	Initiator uint64
	Responder uint64
}

// EventKind names the single scheduled-event slots a state may occupy.
type EventKind int

const (
	EventRetransmit EventKind = iota
	EventLiveness
	EventReleaseWhack
	EventDPD
	EventReplace
	eventKindCount
)

// State is one Exchange State: a half-open or established IKE or child SA.
type State struct {
	Serial uint64
	Kind   Kind
	Role   Role
	Label  Label

	ParentSerial uint64 // valid iff Kind == KindChild
	ConnectionID string // back-reference by identity, not ownership

	Try             int
	RetransmitCount uint32

	// DHSecret is the handle of the DH task submitted for this state: it
	// is set while that computation is in flight and cleared once the
	// result has been collected. The state never holds the local DH
	// private value itself; that stays inside the task.
	DHSecret  *crypto.DHTask
	SharedKey crypto.SymKey

	TSThis []wire.TrafficSelector
	TSThat []wire.TrafficSelector

	FirstPacketMe  []byte
	FirstPacketHim []byte

	LocalAddr  netip.AddrPort
	RemoteAddr netip.AddrPort

	SPI SPIPair

	// scheduled holds at most one timer handle per EventKind; a zero entry
	// means no event of that kind is currently pending for this state.
	scheduled [eventKindCount]uint64
}

// HasEvent reports whether a scheduled event of kind is pending, returning
// its timer handle.
func (s *State) HasEvent(kind EventKind) (uint64, bool) {
	h := s.scheduled[kind]
	return h, h != 0
}

// SetEvent records the timer handle scheduled for kind, replacing any
// prior one (the caller is responsible for having cancelled it first).
func (s *State) SetEvent(kind EventKind, handle uint64) {
	s.scheduled[kind] = handle
}

// ClearEvent removes the record of a scheduled event without cancelling
// the underlying timer — used when a timer fires and is consumed.
func (s *State) ClearEvent(kind EventKind) {
	s.scheduled[kind] = 0
}

// Table indexes States by serial and by SPI pair. All
// mutation happens from the event-loop goroutine; Table itself adds a
// mutex only to guard the rare cross-goroutine read (e.g. a status query
// from the whack server), never the hot path.
type Table struct {
	mu       sync.RWMutex
	nextSer  uint64
	bySerial map[uint64]*State
	bySPI    map[SPIPair]*State
}

// NewTable returns an empty state table. Serial 0 is reserved to mean "no
// state", so allocation starts at 1.
func NewTable() *Table {
	return &Table{
		nextSer:  1,
		bySerial: make(map[uint64]*State),
		bySPI:    make(map[SPIPair]*State),
	}
}

// New allocates a fresh state with the next serial and inserts it into the
// serial index. It is not indexed by SPI pair until BindSPI is called
// (the responder SPI is typically unknown at allocation time).
func (t *Table) New(kind Kind) *State {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &State{Serial: t.nextSer, Kind: kind}
	t.nextSer++
	t.bySerial[s.Serial] = s
	return s
}

// BindSPI (re)indexes a state under its current SPI pair, overwriting any
// stale binding for that pair. Called once the responder SPI is learned.
func (t *Table) BindSPI(s *State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bySPI[s.SPI] = s
}

// BySerial looks up a state by its serial handle. Returns (nil, false) if
// it has been deleted — callers holding a stale serial (e.g. from a timer
// event) must treat this as "drop the event".
func (t *Table) BySerial(serial uint64) (*State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.bySerial[serial]
	return s, ok
}

// BySPI looks up an established or in-progress exchange by its SPI pair.
func (t *Table) BySPI(pair SPIPair) (*State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.bySPI[pair]
	return s, ok
}

// Children returns every state whose ParentSerial is parent's serial.
func (t *Table) Children(parent uint64) []*State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*State
	for _, s := range t.bySerial {
		if s.Kind == KindChild && s.ParentSerial == parent {
			out = append(out, s)
		}
	}
	return out
}

// Delete removes a state and, if it is a parent, cascades to delete every
// child: deleting a parent deletes all its children. It returns every
// serial actually removed, so the caller can cancel their scheduled
// events.
func (t *Table) Delete(serial uint64) []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.bySerial[serial]
	if !ok {
		return nil
	}

	removed := []uint64{serial}
	if s.Kind == KindIKE {
		for ser, child := range t.bySerial {
			if child.Kind == KindChild && child.ParentSerial == serial {
				removed = append(removed, ser)
				delete(t.bySerial, ser)
				delete(t.bySPI, child.SPI)
			}
		}
	}

	delete(t.bySerial, serial)
	delete(t.bySPI, s.SPI)
	return removed
}

// Len reports the number of live states, for status/diagnostics.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bySerial)
}
