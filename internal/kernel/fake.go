package kernel

import (
	"fmt"
	"net/netip"
	"sync"
	"time"
)

type saKey struct {
	protocol Protocol
	spi      uint32
	dst      netip.Addr
}

// Fake is an in-memory Interface for tests: it records installed SAs and
// interfaces without touching the host network stack.
type Fake struct {
	mu sync.Mutex

	SAs        map[saKey]SAParams
	Interfaces map[string]fakeInterface

	// InboundAge is consulted by GetSAInfo; tests set it directly to drive
	// DPD/replace decisions deterministically.
	InboundAge map[saKey]time.Duration

	ShuntsExpired int
}

type fakeInterface struct {
	outerDevice string
	ifID        uint32
	up          bool
}

// NewFake returns an empty Fake kernel.
func NewFake() *Fake {
	return &Fake{
		SAs:        make(map[saKey]SAParams),
		Interfaces: make(map[string]fakeInterface),
		InboundAge: make(map[saKey]time.Duration),
	}
}

func (f *Fake) InstallSA(params SAParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SAs[saKey{params.Protocol, params.SPI, params.Dst}] = params
	return nil
}

func (f *Fake) DeleteSA(protocol Protocol, spi uint32, dst netip.Addr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := saKey{protocol, spi, dst}
	if _, ok := f.SAs[k]; !ok {
		return fmt.Errorf("fake kernel: no SA spi=%#x dst=%s", spi, dst)
	}
	delete(f.SAs, k)
	return nil
}

func (f *Fake) GetSAInfo(protocol Protocol, spi uint32, dst netip.Addr) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := saKey{protocol, spi, dst}
	if _, ok := f.SAs[k]; !ok {
		return 0, fmt.Errorf("fake kernel: no SA spi=%#x dst=%s", spi, dst)
	}
	return f.InboundAge[k], nil
}

func (f *Fake) CreateVirtualInterface(name string, outerDevice string, ifID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.Interfaces[name]; exists {
		return fmt.Errorf("fake kernel: interface %s already exists", name)
	}
	f.Interfaces[name] = fakeInterface{outerDevice: outerDevice, ifID: ifID}
	return nil
}

func (f *Fake) SetInterfaceUp(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	iface, ok := f.Interfaces[name]
	if !ok {
		return fmt.Errorf("fake kernel: no interface %s", name)
	}
	iface.up = true
	f.Interfaces[name] = iface
	return nil
}

func (f *Fake) DeleteInterface(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Interfaces, name)
	return nil
}

func (f *Fake) ExpireBareShunts() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ShuntsExpired++
	return nil
}

var _ Interface = (*Fake)(nil)
