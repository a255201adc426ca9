package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Global carries the daemon-wide knobs that aren't per-connection.
type Global struct {
	ListenPort     int           `yaml:"listen_port"`
	ListenPortNATT int           `yaml:"listen_port_natt"`
	WorkerCount    int           `yaml:"worker_count"`
	WhackSocket    string        `yaml:"whack_socket"`
	CookieThreshold int          `yaml:"cookie_threshold"` // half-open SAs before requiring RFC 7296 §2.6 cookies
	DefaultKeyingTries int       `yaml:"default_keying_tries"`
	_ time.Duration // reserved for future knobs; keeps gofmt stable across edits
}

// rawFile mirrors the on-disk YAML shape. Only the enumerated connection
// and global knobs are decoded; certificate-store and CLI parsing remain
// out of scope.
type rawFile struct {
	Global      Global       `yaml:"global"`
	Connections []rawConn    `yaml:"connections"`
}

type rawConn struct {
	Name               string  `yaml:"name"`
	ThisSubnet         string  `yaml:"this_subnet"`
	ThatSubnet         string  `yaml:"that_subnet"`
	RetransmitIntervalMS int   `yaml:"retransmit_interval_ms"`
	RetransmitTimeoutMS  int   `yaml:"retransmit_timeout_ms"`
	KeyingTries        int     `yaml:"keying_tries"`
	DPDDelaySec        int     `yaml:"dpd_delay_sec"`
	DPDTimeoutSec      int     `yaml:"dpd_timeout_sec"`
	DPDAction          string  `yaml:"dpd_action"`
	RekeyMarginSec     int     `yaml:"rekey_margin_sec"`
	MarginSec          int     `yaml:"margin_sec"`
	Narrowing          bool    `yaml:"narrowing"`
	IKEVersion         string  `yaml:"ikev2"`
}

// Load reads and decodes a YAML configuration file into a Global and a set
// of Connection entries. It does not walk certificate stores or resolve
// "that" to a live peer — only the in-memory data model is populated.
func Load(path string) (Global, []Connection, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Global{}, nil, errors.Wrap(err, "config: read")
	}

	var raw rawFile
	if err := yaml.Unmarshal(f, &raw); err != nil {
		return Global{}, nil, errors.Wrap(err, "config: decode")
	}

	conns := make([]Connection, 0, len(raw.Connections))
	for _, rc := range raw.Connections {
		c, err := rc.toConnection()
		if err != nil {
			return Global{}, nil, errors.Wrapf(err, "config: connection %q", rc.Name)
		}
		conns = append(conns, c)
	}

	return raw.Global, conns, nil
}

func (rc rawConn) toConnection() (Connection, error) {
	c := Connection{
		Name:               rc.Name,
		RetransmitInterval: time.Duration(rc.RetransmitIntervalMS) * time.Millisecond,
		RetransmitTimeout:  time.Duration(rc.RetransmitTimeoutMS) * time.Millisecond,
		KeyingTries:        rc.KeyingTries,
		DPDDelay:           time.Duration(rc.DPDDelaySec) * time.Second,
		DPDTimeout:         time.Duration(rc.DPDTimeoutSec) * time.Second,
		RekeyMargin:        time.Duration(rc.RekeyMarginSec) * time.Second,
		Margin:             time.Duration(rc.MarginSec) * time.Second,
		Narrowing:          rc.Narrowing,
	}

	switch rc.DPDAction {
	case "clear":
		c.DPDAction = DPDClear
	case "restart":
		c.DPDAction = DPDRestart
	default:
		c.DPDAction = DPDHold
	}

	switch rc.IKEVersion {
	case "insist":
		c.IKEVersion = IKEv2Insist
	case "propose":
		c.IKEVersion = IKEv2Propose
	case "no":
		c.IKEVersion = IKEv2No
	default:
		c.IKEVersion = IKEv2Permit
	}

	if c.Narrowing {
		c.Policy |= AllowNarrowing
	}

	return c, nil
}
