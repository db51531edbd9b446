/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/notargets/lesproj/InputParameters"
	"github.com/notargets/lesproj/comm"
	"github.com/notargets/lesproj/field"
	"github.com/notargets/lesproj/grid"
	"github.com/notargets/lesproj/halo"
	"github.com/notargets/lesproj/transpose"
)

// CheckReport is what the check command found on every rank
type CheckReport struct {
	Layout    []string // Topology of every rank, in rank order
	Boundary  string
	Transpose string
}

// CheckCmd represents the check command
var CheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the rank layout, halo exchange and transposes of an input file",
	Long: `
Builds the Npx*Npy decomposition of the input grid, prints the neighbours of
every rank and verifies with a known global pattern that the halo exchange
(periodic sides, the pressure wall conditions on bottom and top) and the
pencil transposes deliver every cell where it belongs.

lesproj check -I input.yaml`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var (
			ip  *InputParameters.InputParametersLES
			rep *CheckReport
		)
		ICFile, _ := cmd.Flags().GetString("inputConditionsFile")
		if ip, err = readInput(ICFile); err != nil {
			return
		}
		if rep, err = RunCheck(context.Background(), ip); err != nil {
			return
		}
		PrintCheck(os.Stdout, rep)
		return
	},
}

func init() {
	rootCmd.AddCommand(CheckCmd)
	CheckCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file with the grid and decomposition to check")
}

func PrintCheck(w io.Writer, rep *CheckReport) {
	for _, line := range rep.Layout {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "boundary:  %s\n", rep.Boundary)
	fmt.Fprintf(w, "transpose: %s\n", rep.Transpose)
}

// RunCheck returns an error naming the rank and cell of the first misplaced
// value
func RunCheck(ctx context.Context, ip *InputParameters.InputParametersLES) (rep *CheckReport, err error) {
	var (
		gc = ip.GridConfig()
		bc field.BotTopBC
		mu sync.Mutex
	)
	if err = gc.Validate(); err != nil {
		return
	}
	if bc, err = ip.PressureBC(); err != nil {
		return
	}
	rep = &CheckReport{Layout: make([]string, gc.Npx*gc.Npy)}
	err = comm.Run(ctx, gc.Npx*gc.Npy, func(ctx context.Context, c comm.Comm) (err error) {
		var (
			topo grid.Topology
			g    *grid.Grid
			tr   string
		)
		if topo, err = grid.NewTopology(gc.Npx, gc.Npy, c.Rank()); err != nil {
			return
		}
		if g, err = grid.New(gc, topo); err != nil {
			return
		}
		if err = checkBoundary(ctx, c, g, bc); err != nil {
			return
		}
		if tr, err = checkTranspose(ctx, c, g); err != nil {
			return
		}
		mu.Lock()
		rep.Layout[c.Rank()] = topo.String()
		if c.Rank() == comm.Root {
			rep.Boundary = fmt.Sprintf("ok, bottom %s %g, top %s %g",
				bc.Bot.Type, bc.Bot.Value, bc.Top.Type, bc.Top.Value)
			rep.Transpose = tr
		}
		mu.Unlock()
		return
	})
	if err != nil {
		rep = nil
	}
	return
}

func checkPattern(g *grid.Grid, ig, jg, kg int) float64 {
	return float64(ig + g.Itot*(jg+g.Jtot*kg))
}

func checkBoundary(ctx context.Context, c comm.Comm, g *grid.Grid, bc field.BotTopBC) (err error) {
	var (
		ex *halo.Exchanger
		f  = field.New(g, "check")
	)
	if ex, err = halo.NewExchanger(g, c); err != nil {
		return
	}
	f.BC = bc
	f.Fill(math.NaN())
	f.FillInterior(func(i, j, k int) float64 {
		return checkPattern(g, g.IOffset()+i-g.Istart, g.JOffset()+j-g.Jstart, k-g.Kstart)
	})
	if err = ex.Exchange(ctx, f, halo.All); err != nil {
		return
	}
	wrap := func(n, size int) int { return ((n % size) + size) % size }
	for k := g.Kstart; k < g.Kend; k++ {
		for j := 0; j < g.Jcells; j++ {
			for i := 0; i < g.Icells; i++ {
				ig := wrap(g.IOffset()+i-g.Istart, g.Itot)
				jg := wrap(g.JOffset()+j-g.Jstart, g.Jtot)
				if want := checkPattern(g, ig, jg, k-g.Kstart); f.At(i, j, k) != want {
					return fmt.Errorf("rank %d, boundary cell (%d,%d,%d): have %g, want %g",
						c.Rank(), i, j, k, f.At(i, j, k), want)
				}
			}
		}
	}
	var (
		ab, bb = bc.Bot.Ghost(false, g.Dz)
		at, bt = bc.Top.Ghost(true, g.Dz)
	)
	for j := g.Jstart; j < g.Jend; j++ {
		for i := g.Istart; i < g.Iend; i++ {
			bot := ab*f.At(i, j, g.Kstart) + bb
			top := at*f.At(i, j, g.Kend-1) + bt
			if math.Abs(f.At(i, j, g.Kstart-1)-bot) > 1e-9*math.Abs(bot)+1e-12 ||
				math.Abs(f.At(i, j, g.Kend)-top) > 1e-9*math.Abs(top)+1e-12 {
				return fmt.Errorf("rank %d, wall ghosts of column (%d,%d): have %g, %g, want %g, %g",
					c.Rank(), i, j, f.At(i, j, g.Kstart-1), f.At(i, j, g.Kend), bot, top)
			}
		}
	}
	return
}

// checkTranspose takes the global pattern through X and Y pencils and back
func checkTranspose(ctx context.Context, c comm.Comm, g *grid.Grid) (status string, err error) {
	if !transpose.CanTranspose(g) {
		return fmt.Sprintf("skipped, %dx%dx%d does not split evenly over %dx%d ranks",
			g.Itot, g.Jtot, g.Ktot, g.Topo.Npx, g.Topo.Npy), nil
	}
	var (
		tr *transpose.Transposer
		f  = field.New(g, "check")
	)
	if tr, err = transpose.New(g, c); err != nil {
		return
	}
	f.FillInterior(func(i, j, k int) float64 {
		return checkPattern(g, g.IOffset()+i-g.Istart, g.JOffset()+j-g.Jstart, k-g.Kstart)
	})
	var (
		z    = tr.NewPencil(transpose.ZPencil)
		x    = tr.NewPencil(transpose.XPencil)
		y    = tr.NewPencil(transpose.YPencil)
		back = tr.NewPencil(transpose.ZPencil)
	)
	placed := func(p *transpose.Pencil) error {
		var (
			ni, nj, nk = tr.Dims(p.Layout)
			i0, j0, k0 = tr.Offsets(p.Layout)
			n          int
		)
		for k := 0; k < nk; k++ {
			for j := 0; j < nj; j++ {
				for i := 0; i < ni; i++ {
					if want := checkPattern(g, i0+i, j0+j, k0+k); p.Data[n] != want {
						return fmt.Errorf("rank %d, %s cell (%d,%d,%d): have %g, want %g",
							c.Rank(), p.Layout, i, j, k, p.Data[n], want)
					}
					n++
				}
			}
		}
		return nil
	}
	if err = transpose.PackField(z, f); err != nil {
		return
	}
	if err = tr.ToXPencil(ctx, x, z); err != nil {
		return
	}
	if err = placed(x); err != nil {
		return
	}
	if err = tr.ToYPencil(ctx, y, x); err != nil {
		return
	}
	if err = placed(y); err != nil {
		return
	}
	if err = tr.FromYPencil(ctx, x, y); err != nil {
		return
	}
	if err = tr.ToZPencil(ctx, back, x); err != nil {
		return
	}
	if err = placed(back); err != nil {
		return
	}
	status = "ok, Z -> X -> Y -> X -> Z"
	return
}
