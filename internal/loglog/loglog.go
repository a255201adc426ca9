// Package loglog wires the engine, exchange, and kernel layers to a
// shared logrus.Logger, scoped per-state and per-exchange the way
// dhsathiya-cilium's ipsec_linux.go scopes a logger per SA with
// log.WithFields before a sequence of kernel calls.
package loglog

import (
	"github.com/sirupsen/logrus"

	"github.com/ikeswand/ikeswand/internal/state"
)

// New returns a logrus.Logger configured the way the daemon expects to
// run: structured fields, text output with full timestamps, at the level
// the caller resolved (cmd/ikeswand takes it from its -log-level flag).
func New(level logrus.Level) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log
}

// ForState scopes log to one state's serial, SPI pair, and label, so every
// line emitted while handling one exchange event carries enough context to
// follow that exchange across a busy log without repeating itself.
func ForState(log *logrus.Logger, st *state.State) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"serial": st.Serial,
		"spi_i":  st.SPI.Initiator,
		"spi_r":  st.SPI.Responder,
		"label":  labelName(st.Label),
		"role":   roleName(st.Role),
	})
}

// ForConnection scopes log to a connection name, used by handlers that
// haven't yet allocated a state (e.g. rejecting a request with no SPD
// match).
func ForConnection(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("connection", name)
}

func labelName(l state.Label) string {
	switch l {
	case state.MainI1:
		return "MAIN_I1"
	case state.MainI2:
		return "MAIN_I2"
	case state.MainI3:
		return "MAIN_I3"
	case state.MainI4:
		return "MAIN_I4"
	case state.MainR1:
		return "MAIN_R1"
	case state.MainR2:
		return "MAIN_R2"
	case state.MainR3:
		return "MAIN_R3"
	case state.AggrI1:
		return "AGGR_I1"
	case state.AggrI2:
		return "AGGR_I2"
	case state.AggrR1:
		return "AGGR_R1"
	case state.AggrR2:
		return "AGGR_R2"
	case state.QuickI1:
		return "QUICK_I1"
	case state.QuickI2:
		return "QUICK_I2"
	case state.QuickR1:
		return "QUICK_R1"
	case state.QuickR2:
		return "QUICK_R2"
	case state.ParentI1:
		return "PARENT_I1"
	case state.ParentI2:
		return "PARENT_I2"
	case state.ParentR1:
		return "PARENT_R1"
	case state.ParentR2:
		return "PARENT_R2"
	case state.V2IPsecI:
		return "V2_IPSEC_I"
	case state.V2IPsecR:
		return "V2_IPSEC_R"
	case state.LabelDeleted:
		return "DELETED"
	default:
		return "NONE"
	}
}

func roleName(r state.Role) string {
	switch r {
	case state.RoleInitiator:
		return "initiator"
	case state.RoleResponder:
		return "responder"
	case state.RoleOriginalInitiator:
		return "original-initiator"
	case state.RoleOriginalResponder:
		return "original-responder"
	default:
		return "unknown"
	}
}
