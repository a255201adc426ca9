// Package kernel implements the abstract kernel interface this daemon
// drives (install_sa, delete_sa, get_sa_info, virtual-interface lifecycle)
// and a Linux XFRM backend over netlink (orig: programs/pluto/
// xfrm_interface.c).
package kernel

import (
	"net/netip"
	"time"
)

// Direction is an IPsec SA's traffic direction.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
)

// Protocol is the IPsec security protocol an SA runs.
type Protocol int

const (
	ProtocolESP Protocol = iota
	ProtocolAH
)

// SAParams describes one IPsec SA to install — the parameters
// install_sa(params) takes.
type SAParams struct {
	Direction Direction
	Protocol  Protocol
	SPI       uint32
	Src, Dst  netip.Addr
	// Selectors bounds the traffic this SA applies to; narrowed TS values
	// from internal/ts land here directly.
	SrcSelector, DstSelector netip.Prefix

	EncryptionKey    []byte
	AuthenticationKey []byte
	EncryptionAlgo    string
	AuthenticationAlgo string

	ReqID uint32 // ties the in/out pair and policy together
}

// Interface implements the kernel operations an exchange needs: SA
// install/delete/inspection, and the virtual (XFRM) interface lifecycle
// used for route-based IPsec.
type Interface interface {
	InstallSA(params SAParams) error
	DeleteSA(protocol Protocol, spi uint32, dst netip.Addr) error
	// GetSAInfo reports how long ago inbound traffic was last seen on
	// the SA identified by (protocol, spi, dst) — the last_inbound_age
	// DPD and idle-pruning read.
	GetSAInfo(protocol Protocol, spi uint32, dst netip.Addr) (lastInboundAge time.Duration, err error)

	CreateVirtualInterface(name string, outerDevice string, ifID uint32) error
	SetInterfaceUp(name string) error
	DeleteInterface(name string) error

	// ExpireBareShunts removes any trap/pass/drop policies left behind
	// by negotiations that never completed.
	ExpireBareShunts() error
}
