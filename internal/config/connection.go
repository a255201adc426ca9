// Package config implements the connection / SPD-route data model
// and its on-disk YAML representation. Parsing certificate
// stores and walking trust chains is explicitly out of scope;
// CAStore below is a minimal CA-trust interface; the TS narrowing
// engine does not consult it.
package config

import (
	"net/netip"
	"time"
)

// DPDAction is what a connection does when its peer is declared dead.
type DPDAction int

const (
	DPDHold DPDAction = iota
	DPDClear
	DPDRestart
)

// IKEVersion is a connection's permitted IKE version negotiation mode.
type IKEVersion int

const (
	IKEv2No IKEVersion = iota
	IKEv2Permit
	IKEv2Propose
	IKEv2Insist
)

// End describes one side of a connection.
type End struct {
	Subnet          netip.Prefix
	Address         netip.Addr
	Port            uint16
	PortWildcard    bool
	Protocol        uint8
	ID              string
	CA              string
	HostPort        uint16
}

// SPDRoute is one entry in a connection's Security Policy Database list: a
// concrete (this, that) pair the TS narrowing engine scores candidates
// against.
type SPDRoute struct {
	This End
	That End
}

// Connection is the operator-configured policy entry this tunnel binds to.
type Connection struct {
	Name     string
	This     End
	That     End
	SPD      []SPDRoute
	Policy   Policy
	Foodgroup string
	IsTemplate bool // POLICY_GROUP template awaiting GROUPINSTANCE instantiation

	RetransmitInterval time.Duration
	RetransmitTimeout  time.Duration
	KeyingTries        int // 0 = unlimited

	DPDDelay   time.Duration
	DPDTimeout time.Duration
	DPDAction  DPDAction

	RekeyMargin time.Duration // soft lifetime
	Margin      time.Duration // additional hard cap past RekeyMargin

	Narrowing bool
	IKEVersion IKEVersion

	NewestISAKMPSA uint64 // serial of newest parent SA, 0 = none
	NewestIPsecSA  uint64
}

// CAStore answers whether a certificate authority identified by name is
// trusted to have issued a peer's certificate, modelled on trusted_ca
// (orig: ikev2_ts.c); nothing in the module calls it. Real certificate-store
// walking is out of scope; callers supply whatever backing
// store fits their deployment.
type CAStore interface {
	Trusted(ca string) bool
}

// AllowAllCAs is a CAStore that trusts every CA name, suitable for
// PSK-only deployments or tests where certificate trust isn't exercised.
type AllowAllCAs struct{}

func (AllowAllCAs) Trusted(string) bool { return true }
