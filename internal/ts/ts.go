// Package ts implements the traffic-selector narrowing engine: scoring a
// peer's proposed TSi/TSr ranges against a connection's configured SPD
// routes, picking the best-fitting route, and narrowing the proposal down
// to the intersection both sides can actually use (orig:
// programs/pluto/ikev2_ts.c).
package ts

import (
	"net/netip"

	"github.com/pkg/errors"

	"github.com/ikeswand/ikeswand/internal/config"
	"github.com/ikeswand/ikeswand/internal/selector"
	"github.com/ikeswand/ikeswand/internal/wire"
)

// Fit is a narrowing match quality, ordered worst to best. The zero value,
// NoMatch, never survives into a chosen route.
type Fit int

const (
	NoMatch Fit = iota
	MaybeMatch     // END_WIDER_THAN_TS: the connection end is a superset of the request
	ExactMatch     // the request is precisely the connection end's range
)

// Candidate is one SPD route scored against a proposed pair, carrying the
// narrowed ranges the engine would actually install if this route wins.
type Candidate struct {
	Route       config.SPDRoute
	Fit         Fit
	PrefixBits  int // sum of both ends' shared-prefix bit counts, the tiebreaker
	NarrowedTSi selector.Range
	NarrowedTSr selector.Range
	ThisPort    [2]uint16
	ThatPort    [2]uint16
	Protocol    uint8
}

var (
	// ErrNoAcceptableRoute is returned when no SPD route (including any
	// group-instance template) fits the proposed selectors at all.
	ErrNoAcceptableRoute = errors.New("ts: no acceptable traffic selector narrowing")
	// ErrResponseWidened is returned by ProcessResponse when the responder
	// handed back a selector that is not a subset of what was proposed —
	// the initiator-side mirror of the responder's own narrowing check.
	ErrResponseWidened = errors.New("ts: responder widened a traffic selector")
)

// endRange converts a connection end into its address range and protocol
// fields, the moral equivalent of ikev2_end_to_ts.
func endRange(e config.End) selector.Range {
	return selector.SubnetRange(e.Subnet.Addr(), e.Subnet.Bits())
}

// fitRange scores how well a proposed range fits a connection end's range:
// ExactMatch when they're equal, MaybeMatch when the end is a strict
// superset (the end is "wider than" the request, orig: END_WIDER_THAN_TS),
// NoMatch otherwise. This mirrors match_address_range's three-way result.
func fitRange(end selector.Range, proposed selector.Range) Fit {
	switch {
	case end == proposed:
		return ExactMatch
	case end.Contains(proposed):
		return MaybeMatch
	default:
		return NoMatch
	}
}

// fitPort scores a connection end's configured port against a proposed
// [low, high] port range the same way: exact equality, a wider
// configured range containing the proposal, or no match at all.
func fitPort(end config.End, lowProposed, highProposed uint16) (Fit, uint16, uint16) {
	var endLow, endHigh uint16
	if end.Port == 0 || end.PortWildcard {
		endLow, endHigh = 0, 65535
	} else {
		endLow, endHigh = end.Port, end.Port
	}

	switch {
	case endLow == lowProposed && endHigh == highProposed:
		return ExactMatch, lowProposed, highProposed
	case endLow <= lowProposed && highProposed <= endHigh:
		return MaybeMatch, lowProposed, highProposed
	default:
		return NoMatch, 0, 0
	}
}

// fitProtocol scores protocol 0 (wildcard) against any proposal as a maybe,
// and an exact protocol number only against the same number.
func fitProtocol(end config.End, proposed uint8) Fit {
	switch {
	case end.Protocol == 0 && proposed == 0:
		return ExactMatch
	case end.Protocol == 0:
		return MaybeMatch
	case end.Protocol == proposed:
		return ExactMatch
	default:
		return NoMatch
	}
}

// combine folds a running Fit with a new dimension's Fit: any NoMatch
// dimension vetoes the whole candidate, otherwise the worse of the two
// survives (an ExactMatch overall requires every dimension to be exact).
func combine(a, b Fit) Fit {
	if a == NoMatch || b == NoMatch {
		return NoMatch
	}
	if a < b {
		return a
	}
	return b
}

// scoreRoute evaluates one SPD route against a single proposed (tsi, tsr)
// pair, returning NoMatch if any dimension on either end rejects it.
//
// TSi carries the initiator's own traffic, so as the responder it is
// matched against the connection's That (remote) end; TSr carries what the
// initiator expects to reach, matched against This (local) end — the same
// swap v2_process_ts_request makes via its `ends{.i = &sra->that, .r =
// &sra->this}` construction.
func scoreRoute(route config.SPDRoute, tsi, tsr wire.TrafficSelector) (Candidate, bool) {
	thisRange := endRange(route.This)
	thatRange := endRange(route.That)

	tsiRange := selector.Range{Start: tsi.StartAddr, End: tsi.EndAddr}
	tsrRange := selector.Range{Start: tsr.StartAddr, End: tsr.EndAddr}

	fitThatAddr := fitRange(thatRange, tsiRange)
	fitThisAddr := fitRange(thisRange, tsrRange)

	fitThatPort, thatLow, thatHigh := fitPort(route.That, tsi.StartPort, tsi.EndPort)
	fitThisPort, thisLow, thisHigh := fitPort(route.This, tsr.StartPort, tsr.EndPort)

	fitThatProto := fitProtocol(route.That, tsi.IPProtocol)
	fitThisProto := fitProtocol(route.This, tsr.IPProtocol)
	// Reject when either end's configured protocol does not fit the
	// protocol its own selector proposes; the two ends' configured
	// protocols are not compared with each other.
	if fitThisProto == NoMatch || fitThatProto == NoMatch {
		return Candidate{}, false
	}

	overall := combine(fitThisAddr, fitThatAddr)
	overall = combine(overall, fitThisPort)
	overall = combine(overall, fitThatPort)
	overall = combine(overall, fitThisProto)
	overall = combine(overall, fitThatProto)
	if overall == NoMatch {
		return Candidate{}, false
	}

	proto := tsi.IPProtocol
	if proto == 0 {
		proto = tsr.IPProtocol
	}

	return Candidate{
		Route:       route,
		Fit:         overall,
		PrefixBits:  selector.RangeBits(tsiRange) + selector.RangeBits(tsrRange),
		NarrowedTSi: tsiRange,
		NarrowedTSr: tsrRange,
		ThisPort:    [2]uint16{thisLow, thisHigh},
		ThatPort:    [2]uint16{thatLow, thatHigh},
		Protocol:    proto,
	}, true
}

// best picks the highest-scoring candidate by Fit first, then by summed
// prefix-bit specificity (a tighter, more specific route wins a tie), the
// same two-level ordering ikev2_evaluate_connection_fit's callers use.
func best(candidates []Candidate) (Candidate, bool) {
	var winner Candidate
	found := false
	for _, c := range candidates {
		if !found || c.Fit > winner.Fit ||
			(c.Fit == winner.Fit && c.PrefixBits > winner.PrefixBits) {
			winner = c
			found = true
		}
	}
	return winner, found
}

// ProcessRequest implements v2_process_ts_request: given a set of candidate
// connections (used as given: no host-pair, ID or trusted-CA check is
// applied to them here) and a peer's single proposed
// (TSi, TSr) pair, it searches every SPD route of every candidate and
// returns the single best-fitting route along with the narrowed selectors
// to install and echo back.
//
// Candidates whose IsTemplate is set are POLICY_GROUP templates:
// group-instance matching resolves to only ever consider the first client
// of each side (a group template is defined to
// carry exactly one selector per end); a template with more than one SPD
// route, or whose ends don't reduce to a single CIDR, is skipped rather
// than panicking.
func ProcessRequest(candidates []config.Connection, tsi, tsr []wire.TrafficSelector) (config.Connection, Candidate, error) {
	if len(tsi) == 0 || len(tsr) == 0 {
		return config.Connection{}, Candidate{}, errors.New("ts: empty selector proposal")
	}
	// Only the first selector of each side is matched against configured
	// routes and narrowed; additional selectors are ignored (orig:
	// ikev2_ts.c limits the route search to the first TSi/TSr entry).
	firstTSi, firstTSr := tsi[0], tsr[0]

	var scored []Candidate
	var owners []config.Connection

	for _, conn := range candidates {
		if conn.IsTemplate {
			if len(conn.SPD) != 1 {
				continue
			}
			if !selector.IsSingleCIDR(endRange(conn.SPD[0].This), conn.SPD[0].This.Subnet.Bits()) {
				continue
			}
			if !selector.IsSingleCIDR(endRange(conn.SPD[0].That), conn.SPD[0].That.Subnet.Bits()) {
				continue
			}
		}
		for _, route := range conn.SPD {
			if c, ok := scoreRoute(route, firstTSi, firstTSr); ok {
				scored = append(scored, c)
				owners = append(owners, conn)
			}
		}
	}

	idx := -1
	var winner Candidate
	for i, c := range scored {
		if idx == -1 || c.Fit > winner.Fit || (c.Fit == winner.Fit && c.PrefixBits > winner.PrefixBits) {
			winner = c
			idx = i
		}
	}
	if idx == -1 {
		return config.Connection{}, Candidate{}, ErrNoAcceptableRoute
	}

	return owners[idx], winner, nil
}

// ProcessResponse implements the initiator-side mirror, v2_process_ts_response:
// the responder's narrowed (TSi, TSr) must each be a subset of what the
// initiator originally proposed. A responder that widens a selector is a
// protocol violation, not a narrowing outcome, and is rejected outright.
func ProcessResponse(proposedTSi, proposedTSr, narrowedTSi, narrowedTSr []wire.TrafficSelector) error {
	if len(narrowedTSi) == 0 || len(narrowedTSr) == 0 {
		return errors.New("ts: empty narrowed selector set")
	}
	if err := subsetOfAny(proposedTSi, narrowedTSi); err != nil {
		return errors.Wrap(err, "ts: initiator selectors")
	}
	if err := subsetOfAny(proposedTSr, narrowedTSr); err != nil {
		return errors.Wrap(err, "ts: responder selectors")
	}
	return nil
}

func subsetOfAny(proposed, narrowed []wire.TrafficSelector) error {
	for _, n := range narrowed {
		nr := selector.Range{Start: n.StartAddr, End: n.EndAddr}
		ok := false
		for _, p := range proposed {
			pr := selector.Range{Start: p.StartAddr, End: p.EndAddr}
			if pr.Contains(nr) && p.StartPort <= n.StartPort && n.EndPort <= p.EndPort {
				ok = true
				break
			}
		}
		if !ok {
			return ErrResponseWidened
		}
	}
	return nil
}

// EmitPayloads converts a chosen candidate's narrowed ranges back into the
// wire TSi/TSr payload bodies to send. Earlier narrowing code emitted the
// same selector into both the exact-match and the wider-match payload
// lists, duplicating it on the wire; this emits each side exactly once.
func EmitPayloads(c Candidate) (tsi, tsr []wire.TrafficSelector) {
	tsiType := wire.TSIPv4AddrRange
	if c.NarrowedTSi.Start.Is6() && !c.NarrowedTSi.Start.Is4In6() {
		tsiType = wire.TSIPv6AddrRange
	}
	tsrType := wire.TSIPv4AddrRange
	if c.NarrowedTSr.Start.Is6() && !c.NarrowedTSr.Start.Is4In6() {
		tsrType = wire.TSIPv6AddrRange
	}

	tsi = []wire.TrafficSelector{{
		Type:       tsiType,
		IPProtocol: c.Protocol,
		StartPort:  c.ThatPort[0],
		EndPort:    c.ThatPort[1],
		StartAddr:  c.NarrowedTSi.Start,
		EndAddr:    c.NarrowedTSi.End,
	}}
	tsr = []wire.TrafficSelector{{
		Type:       tsrType,
		IPProtocol: c.Protocol,
		StartPort:  c.ThisPort[0],
		EndPort:    c.ThisPort[1],
		StartAddr:  c.NarrowedTSr.Start,
		EndAddr:    c.NarrowedTSr.End,
	}}
	return tsi, tsr
}

// zeroPrefix reports whether p is the unspecified 0.0.0.0/0 or ::/0
// prefix, i.e. a connection end that stands for "any". Nothing in the
// module calls it.
func zeroPrefix(p netip.Prefix) bool {
	return p.Bits() == 0
}
