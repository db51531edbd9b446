package utils

import "strings"

// BCType represents boundary condition types for the top and bottom walls
// and the horizontal edges of the domain
type BCType uint16

const (
	// BCNone indicates no boundary condition was given
	BCNone BCType = iota

	BCDirichlet // Fixed value at the wall face
	BCNeumann   // Fixed gradient (flux) at the wall face
	BCPeriodic  // Cyclic, horizontal edges only
)

// String returns the string representation of a BCType
func (bc BCType) String() string {
	names := map[BCType]string{
		BCNone:      "None",
		BCDirichlet: "Dirichlet",
		BCNeumann:   "Neumann",
		BCPeriodic:  "Periodic",
	}
	if name, ok := names[bc]; ok {
		return name
	}
	return "Unknown"
}

// BCNameMap provides a mapping from common boundary condition names to BCType
// Keys are lowercase for case-insensitive matching
var BCNameMap = map[string]BCType{
	"dirichlet":   BCDirichlet,
	"fixed_value": BCDirichlet,
	"fixedvalue":  BCDirichlet,
	"value":       BCDirichlet,

	"neumann":    BCNeumann,
	"neuman":     BCNeumann,
	"fixed_flux": BCNeumann,
	"fixedflux":  BCNeumann,
	"flux":       BCNeumann,
	"gradient":   BCNeumann,

	"periodic": BCPeriodic,
	"cyclic":   BCPeriodic,
}

// ParseBCName converts a boundary condition name string to BCType
// The matching is case-insensitive and trims whitespace, unknown names map to
// BCNone so callers can reject them during validation
func ParseBCName(name string) BCType {
	lowerName := strings.ToLower(strings.TrimSpace(name))
	if bcType, ok := BCNameMap[lowerName]; ok {
		return bcType
	}
	return BCNone
}
