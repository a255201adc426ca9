package whack

import "errors"

// errNoSuchSA is returned by command handlers (terminate, rekey, ...) that
// were given a name or serial matching nothing in the state table.
var errNoSuchSA = errors.New("whack: no such SA")
