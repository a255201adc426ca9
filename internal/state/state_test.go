package state

import "testing"

func TestNewAllocatesIncreasingSerials(t *testing.T) {
	tbl := NewTable()
	a := tbl.New(KindIKE)
	b := tbl.New(KindIKE)
	if a.Serial == 0 || b.Serial == 0 {
		t.Fatal("serial 0 is reserved for \"no state\"")
	}
	if b.Serial <= a.Serial {
		t.Fatalf("serials not increasing: %d then %d", a.Serial, b.Serial)
	}
}

func TestBySPILookup(t *testing.T) {
	tbl := NewTable()
	s := tbl.New(KindIKE)
	s.SPI = SPIPair{Initiator: 0xAAAA, Responder: 0xBBBB}
	tbl.BindSPI(s)

	got, ok := tbl.BySPI(SPIPair{Initiator: 0xAAAA, Responder: 0xBBBB})
	if !ok || got.Serial != s.Serial {
		t.Fatalf("BySPI did not find the bound state")
	}

	if _, ok := tbl.BySPI(SPIPair{Initiator: 1, Responder: 2}); ok {
		t.Fatal("BySPI found a state for an unbound pair")
	}
}

func TestDeleteCascadesToChildren(t *testing.T) {
	tbl := NewTable()
	parent := tbl.New(KindIKE)
	child1 := tbl.New(KindChild)
	child1.ParentSerial = parent.Serial
	child2 := tbl.New(KindChild)
	child2.ParentSerial = parent.Serial
	unrelated := tbl.New(KindIKE)

	removed := tbl.Delete(parent.Serial)
	if len(removed) != 3 {
		t.Fatalf("len(removed) = %d, want 3 (parent + 2 children)", len(removed))
	}

	if _, ok := tbl.BySerial(parent.Serial); ok {
		t.Fatal("parent still present after delete")
	}
	if _, ok := tbl.BySerial(child1.Serial); ok {
		t.Fatal("child1 still present after cascade delete")
	}
	if _, ok := tbl.BySerial(child2.Serial); ok {
		t.Fatal("child2 still present after cascade delete")
	}
	if _, ok := tbl.BySerial(unrelated.Serial); !ok {
		t.Fatal("unrelated state was wrongly removed")
	}
}

func TestDeleteUnknownSerialIsNoop(t *testing.T) {
	tbl := NewTable()
	if removed := tbl.Delete(9999); removed != nil {
		t.Fatalf("Delete on unknown serial returned %v, want nil", removed)
	}
}

func TestScheduledEventSlots(t *testing.T) {
	tbl := NewTable()
	s := tbl.New(KindIKE)

	if _, ok := s.HasEvent(EventRetransmit); ok {
		t.Fatal("fresh state should have no scheduled retransmit")
	}

	s.SetEvent(EventRetransmit, 42)
	h, ok := s.HasEvent(EventRetransmit)
	if !ok || h != 42 {
		t.Fatalf("HasEvent(EventRetransmit) = (%d, %v), want (42, true)", h, ok)
	}

	s.ClearEvent(EventRetransmit)
	if _, ok := s.HasEvent(EventRetransmit); ok {
		t.Fatal("ClearEvent did not clear the slot")
	}
}
