package InputParameters

import (
	"fmt"
	"sort"

	"github.com/ghodss/yaml"

	"github.com/notargets/lesproj/field"
	"github.com/notargets/lesproj/grid"
	"github.com/notargets/lesproj/multigrid"
	"github.com/notargets/lesproj/pressure"
	"github.com/notargets/lesproj/utils"
)

// Parameters obtained from the YAML input file. ghodss/yaml goes through
// encoding/json, so the keys are matched against the json tags.
type InputParametersLES struct {
	Title             string                        `json:"Title"`
	Itot              int                           `json:"Itot"`
	Jtot              int                           `json:"Jtot"`
	Ktot              int                           `json:"Ktot"`
	Xsize             float64                       `json:"Xsize"`
	Ysize             float64                       `json:"Ysize"`
	Zsize             float64                       `json:"Zsize"`
	Npx               int                           `json:"Npx"`
	Npy               int                           `json:"Npy"`
	Halo              [3]int                        `json:"Halo"` // Ghost cells in x, y, z, zero means 1
	BCs               map[string]map[string]float64 `json:"BCs"`  // "Bottom"/"Top" -> {"Neumann": gradient} or {"Dirichlet": value}
	Restriction       string                        `json:"Restriction"`
	CoarseSolver      string                        `json:"CoarseSolver"`
	PreSmooth         int                           `json:"PreSmooth"`
	PostSmooth        int                           `json:"PostSmooth"`
	CoarseSweeps      int                           `json:"CoarseSweeps"`
	Tolerance         float64                       `json:"Tolerance"`
	MaxCycles         int                           `json:"MaxCycles"`
	MaxLevels         int                           `json:"MaxLevels"`
	MaxDirectUnknowns int                           `json:"MaxDirectUnknowns"`
	ParallelDegree    int                           `json:"ParallelDegree"`
	RHSScale          float64                       `json:"RHSScale"`
	ColdStart         bool                          `json:"ColdStart"`
	Source            [3]int                        `json:"Source"` // Global cell of the point source
	Steps             int                           `json:"Steps"`  // Number of pressure solves of the run
}

func (ip *InputParametersLES) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

func (ip *InputParametersLES) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%d,%d,%d]\t\t= Cells\n", ip.Itot, ip.Jtot, ip.Ktot)
	fmt.Printf("[%g,%g,%g]\t\t= Domain Size\n", ip.Xsize, ip.Ysize, ip.Zsize)
	fmt.Printf("[%dx%d]\t\t\t= Process Grid\n", ip.Npx, ip.Npy)
	fmt.Printf("[%s]\t\t= Restriction\n", ip.Restriction)
	fmt.Printf("[%s]\t\t\t= Coarse Solver\n", ip.CoarseSolver)
	fmt.Printf("%8.3e\t\t= Tolerance\n", ip.Tolerance)
	fmt.Printf("[%d]\t\t\t\t= Max Cycles\n", ip.MaxCycles)
	keys := make([]string, len(ip.BCs))
	i := 0
	for k := range ip.BCs {
		keys[i] = k
		i++
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("BCs[%s] = %v\n", key, ip.BCs[key])
	}
}

func (ip *InputParametersLES) GridConfig() grid.Config {
	hl := ip.Halo
	for n := range hl {
		if hl[n] == 0 {
			hl[n] = grid.StencilHalfWidth
		}
	}
	return grid.Config{
		Itot: ip.Itot, Jtot: ip.Jtot, Ktot: ip.Ktot,
		Xsize: ip.Xsize, Ysize: ip.Ysize, Zsize: ip.Zsize,
		Npx: ip.Npx, Npy: ip.Npy,
		Igc: hl[0], Jgc: hl[1], Kgc: hl[2],
	}
}

// PressureBC reads the wall conditions, a missing wall is zero gradient
func (ip *InputParametersLES) PressureBC() (bc field.BotTopBC, err error) {
	bc = field.DefaultBC()
	for key, params := range ip.BCs {
		var side *field.Side
		switch key {
		case "Bottom", "bottom", "Bot", "bot":
			side = &bc.Bot
		case "Top", "top":
			side = &bc.Top
		default:
			err = fmt.Errorf("%w: unknown wall %q, use Bottom or Top", grid.ErrConfig, key)
			return
		}
		if len(params) != 1 {
			err = fmt.Errorf("%w: wall %s needs exactly one condition, have %v", grid.ErrConfig, key, params)
			return
		}
		for name, val := range params {
			*side = field.Side{Type: utils.ParseBCName(name), Value: val}
		}
	}
	err = bc.Validate()
	return
}

// MultigridConfig starts from the defaults and overrides every value given
func (ip *InputParametersLES) MultigridConfig() (cfg multigrid.Config, err error) {
	cfg = multigrid.DefaultConfig()
	if cfg.Restriction, err = multigrid.ParseRestriction(ip.Restriction); err != nil {
		return
	}
	if cfg.CoarseSolver, err = multigrid.ParseCoarseSolver(ip.CoarseSolver); err != nil {
		return
	}
	setInt := func(dst *int, val int) {
		if val != 0 {
			*dst = val
		}
	}
	setInt(&cfg.PreSmooth, ip.PreSmooth)
	setInt(&cfg.PostSmooth, ip.PostSmooth)
	setInt(&cfg.CoarseSweeps, ip.CoarseSweeps)
	setInt(&cfg.MaxCycles, ip.MaxCycles)
	setInt(&cfg.MaxLevels, ip.MaxLevels)
	setInt(&cfg.MaxDirectUnknowns, ip.MaxDirectUnknowns)
	setInt(&cfg.ParallelDegree, ip.ParallelDegree)
	if ip.Tolerance != 0 {
		cfg.Tolerance = ip.Tolerance
	}
	err = cfg.Validate()
	return
}

func (ip *InputParametersLES) PressureConfig() (cfg pressure.Config, err error) {
	cfg = pressure.DefaultConfig()
	if cfg.Multigrid, err = ip.MultigridConfig(); err != nil {
		return
	}
	if cfg.BC, err = ip.PressureBC(); err != nil {
		return
	}
	if ip.RHSScale != 0 {
		cfg.RHSScale = ip.RHSScale
	}
	cfg.WarmStart = !ip.ColdStart
	return
}
