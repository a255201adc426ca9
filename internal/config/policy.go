package config

// Policy is the connection policy bitmask.
type Policy uint32

const (
	AllowNarrowing Policy = 1 << iota
	DontRekey
	Opportunistic
	IKEv1Allow
	IKEv2Allow
	Group
	GroupInstance
)

func (p Policy) Has(bit Policy) bool { return p&bit != 0 }
