package exchange

// NotifyKind is a subset of IKEv2 notify message types this module
// produces itself (as opposed to ones parsed off the wire).
type NotifyKind int

const (
	NotifyNone NotifyKind = iota
	NotifyInvalidSyntax
	NotifyTSUnacceptable
	NotifyNoProposalChosen
	NotifyAuthenticationFailed
)

// Status is the result of handling one exchange event: a payload, a
// timer, or a crypto completion. It replaces the original's early-return
// stf_status codes with an explicit variant the dispatcher switches on
// — no error unwinds
// across the event-loop boundary.
type Status struct {
	kind statusKind
	Notify NotifyKind
}

type statusKind int

const (
	statusOK statusKind = iota
	statusIgnore
	statusSuspend
	statusFatalDeleteState
	statusFailWithNotify
)

// Ok means the handler completed normally; the caller advances state.
func Ok() Status { return Status{kind: statusOK} }

// Ignore means the message was recognized but requires no action (e.g. a
// duplicate retransmit of an already-answered request).
func Ignore() Status { return Status{kind: statusIgnore} }

// Suspend means processing is paused pending an asynchronous completion
// (a crypto task, an external auth helper); the state is left in place.
func Suspend() Status { return Status{kind: statusSuspend} }

// FatalDeleteState means the state must be torn down: an assertion
// violation or unrecoverable protocol error.
func FatalDeleteState() Status { return Status{kind: statusFatalDeleteState} }

// FailWithNotify means the exchange failed in a way that warrants telling
// the peer; the caller sends a NOTIFY of the given kind and then deletes
// the state.
func FailWithNotify(kind NotifyKind) Status {
	return Status{kind: statusFailWithNotify, Notify: kind}
}

func (s Status) IsOK() bool                 { return s.kind == statusOK }
func (s Status) IsIgnore() bool             { return s.kind == statusIgnore }
func (s Status) IsSuspend() bool            { return s.kind == statusSuspend }
func (s Status) IsFatalDeleteState() bool   { return s.kind == statusFatalDeleteState }
func (s Status) IsFailWithNotify() bool     { return s.kind == statusFailWithNotify }
