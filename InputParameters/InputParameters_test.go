package InputParameters

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/lesproj/grid"
	"github.com/notargets/lesproj/multigrid"
	"github.com/notargets/lesproj/utils"
)

var input = `
########################################
Title: "Point source, 27 ranks"
Itot: 12
Jtot: 36
Ktot: 12
Xsize: 12.
Ysize: 36.
Zsize: 12.
Npx: 3
Npy: 9
Halo: [2, 2, 1]
BCs:
  Bottom:
    Dirichlet: 0
  Top:
    Neumann: 0.5
Restriction: half
CoarseSolver: direct
Tolerance: 1.e-9
MaxCycles: 30
Source: [5, 7, 6]
########################################
`

func TestInputParametersLES(t *testing.T) {
	ip := &InputParametersLES{}
	require.NoError(t, ip.Parse([]byte(input)))
	{ // Test grid
		cfg := ip.GridConfig()
		assert.Equal(t, grid.Config{Itot: 12, Jtot: 36, Ktot: 12, Xsize: 12, Ysize: 36, Zsize: 12,
			Npx: 3, Npy: 9, Igc: 2, Jgc: 2, Kgc: 1}, cfg)
		assert.NoError(t, cfg.Validate())
		assert.Equal(t, [3]int{5, 7, 6}, ip.Source)
	}
	{ // Test pressure configuration, unset values keep their defaults
		pc, err := ip.PressureConfig()
		require.NoError(t, err)
		assert.Equal(t, utils.BCDirichlet, pc.BC.Bot.Type)
		assert.Equal(t, utils.BCNeumann, pc.BC.Top.Type)
		assert.Equal(t, 0.5, pc.BC.Top.Value)
		assert.Equal(t, multigrid.HalfWeighting, pc.Multigrid.Restriction)
		assert.Equal(t, multigrid.CoarseDirect, pc.Multigrid.CoarseSolver)
		assert.Equal(t, 1e-9, pc.Multigrid.Tolerance)
		assert.Equal(t, 30, pc.Multigrid.MaxCycles)
		assert.Equal(t, multigrid.DefaultConfig().PreSmooth, pc.Multigrid.PreSmooth)
		assert.Equal(t, 1., pc.RHSScale)
		assert.True(t, pc.WarmStart)
	}
	{ // Test bad input
		bad := &InputParametersLES{BCs: map[string]map[string]float64{"Side": {"Neumann": 0}}}
		_, err := bad.PressureBC()
		assert.True(t, errors.Is(err, grid.ErrConfig))
		bad = &InputParametersLES{BCs: map[string]map[string]float64{"Top": {"Periodic": 0}}}
		_, err = bad.PressureBC()
		assert.True(t, errors.Is(err, grid.ErrConfig))
		bad = &InputParametersLES{CoarseSolver: "multigrid"}
		_, err = bad.MultigridConfig()
		assert.True(t, errors.Is(err, grid.ErrConfig))
	}
}
