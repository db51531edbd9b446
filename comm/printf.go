package comm

import "fmt"

// PrintAllProcs makes Printf print on every rank, prefixed by the rank
var PrintAllProcs = false

// Printf does fmt.Printf on the root rank only
func Printf(c Comm, fs string, pars ...any) {
	if c.Rank() != Root {
		if PrintAllProcs {
			AllPrintf(c, fs, pars...)
		}
		return
	}
	fmt.Printf(fs, pars...)
}

// AllPrintf prints on every rank with the rank first, for debugging
// communication
func AllPrintf(c Comm, fs string, pars ...any) {
	fmt.Printf(fmt.Sprintf("P%d: ", c.Rank())+fs, pars...)
}
