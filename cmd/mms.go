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
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/lesproj/InputParameters"
	"github.com/notargets/lesproj/comm"
	"github.com/notargets/lesproj/field"
	"github.com/notargets/lesproj/grid"
	"github.com/notargets/lesproj/pressure"
	"github.com/notargets/lesproj/utils"
)

// MMSLevel is the error of one grid of a manufactured solution study
type MMSLevel struct {
	Itot, Jtot, Ktot int
	Dx               float64
	RMS, Max         float64
	Cycles           int
}

// MMSCmd represents the mms command
var MMSCmd = &cobra.Command{
	Use:   "mms",
	Short: "Manufactured solution convergence study of the pressure solver",
	Long: `
Solves lap(p) = f for p = sin(2 pi x/Lx) cos(2 pi y/Ly) sin(pi z/Lz) with fixed
zero pressure on both walls, on the input grid refined by two in every
direction at each level, and writes the RMS and maximum error to a CSV file
that tools/convOrder reads.

lesproj mms -I input.yaml --levels 3 --csvFile mms.csv`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var (
			ip      *InputParameters.InputParametersLES
			levels  []MMSLevel
			ICFile  string
			csvFile string
			nLevels int
		)
		ICFile, _ = cmd.Flags().GetString("inputConditionsFile")
		csvFile, _ = cmd.Flags().GetString("csvFile")
		nLevels, _ = cmd.Flags().GetInt("levels")
		if ip, err = readInput(ICFile); err != nil {
			return
		}
		if levels, err = RunMMS(context.Background(), ip, nLevels, viper.GetBool("verbose")); err != nil {
			return
		}
		for n, lev := range levels {
			order := math.NaN()
			if n > 0 {
				order = math.Log2(levels[n-1].RMS / lev.RMS)
			}
			fmt.Printf("%4d x %4d x %4d: rms %.4e max %.4e order %5.2f, %d cycles\n",
				lev.Itot, lev.Jtot, lev.Ktot, lev.RMS, lev.Max, order, lev.Cycles)
		}
		return writeMMS(csvFile, ip.Title, levels)
	},
}

func init() {
	rootCmd.AddCommand(MMSCmd)
	MMSCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file with the coarsest grid of the study")
	MMSCmd.Flags().IntP("levels", "l", 3, "number of grids, each twice as fine as the previous one")
	MMSCmd.Flags().String("csvFile", "mms.csv", "output file of the study")
}

func RunMMS(ctx context.Context, ip *InputParameters.InputParametersLES, nLevels int, verbose bool) (levels []MMSLevel, err error) {
	var pc pressure.Config
	if pc, err = ip.PressureConfig(); err != nil {
		return
	}
	pc.BC = field.BotTopBC{
		Bot: field.Side{Type: utils.BCDirichlet},
		Top: field.Side{Type: utils.BCDirichlet},
	}
	gc := ip.GridConfig()
	for l := 0; l < nLevels; l++ {
		var lev MMSLevel
		if lev, err = mmsLevel(ctx, gc, pc, verbose); err != nil {
			return
		}
		levels = append(levels, lev)
		gc.Itot, gc.Jtot, gc.Ktot = 2*gc.Itot, 2*gc.Jtot, 2*gc.Ktot
	}
	return
}

func mmsLevel(ctx context.Context, gc grid.Config, pc pressure.Config, verbose bool) (lev MMSLevel, err error) {
	if err = gc.Validate(); err != nil {
		return
	}
	var (
		kx  = 2 * math.Pi / gc.Xsize
		ky  = 2 * math.Pi / gc.Ysize
		kz  = math.Pi / gc.Zsize
		lap = -(kx*kx + ky*ky + kz*kz)
	)
	err = comm.Run(ctx, gc.Npx*gc.Npy, func(ctx context.Context, c comm.Comm) (err error) {
		var (
			topo grid.Topology
			g    *grid.Grid
			s    *pressure.Solver
			res  *pressure.Result
		)
		if topo, err = grid.NewTopology(gc.Npx, gc.Npy, c.Rank()); err != nil {
			return
		}
		if g, err = grid.New(gc, topo); err != nil {
			return
		}
		if s, err = pressure.New(g, c, pc, pressure.WithVerbose(verbose), pressure.WithRun("mms")); err != nil {
			return
		}
		exact := s.NewField("exact")
		exact.FillInterior(func(i, j, k int) float64 {
			return math.Sin(kx*g.XCenter(i)) * math.Cos(ky*g.YCenter(j)) * math.Sin(kz*g.ZCenter(k))
		})
		rhs := s.NewField("rhs")
		if err = rhs.CopyFrom(exact); err != nil {
			return
		}
		rhs.ScaleInterior(lap)
		if res, err = s.Solve(ctx, rhs); err != nil {
			return
		}
		var (
			p   = res.Pressure.PackInterior(nil)
			ref = exact.PackInterior(nil)
			sum []float64
		)
		floats.Sub(p, ref)
		sum = []float64{floats.Dot(p, p)}
		if err = comm.AllReduce(ctx, c, comm.Sum, sum); err != nil {
			return
		}
		var mx float64
		if mx, err = comm.AllReduceScalar(ctx, c, comm.Max, floats.Norm(p, math.Inf(1))); err != nil {
			return
		}
		if c.Rank() == comm.Root {
			lev = MMSLevel{
				Itot:   g.Itot,
				Jtot:   g.Jtot,
				Ktot:   g.Ktot,
				Dx:     g.Dx,
				RMS:    math.Sqrt(sum[0] / float64(g.NTotal())),
				Max:    mx,
				Cycles: res.Cycles,
			}
		}
		return
	})
	return
}

func writeMMS(csvFile, title string, levels []MMSLevel) (err error) {
	var f *os.File
	if f, err = os.Create(csvFile); err != nil {
		return
	}
	defer f.Close()
	w := csv.NewWriter(f)
	fg := func(v float64) string { return strconv.FormatFloat(v, 'g', 10, 64) }
	if err = w.Write([]string{"Title", "Itot", "Jtot", "Ktot", "Dx", "RMS", "Max", "Cycles"}); err != nil {
		return
	}
	for _, lev := range levels {
		if err = w.Write([]string{
			title, strconv.Itoa(lev.Itot), strconv.Itoa(lev.Jtot), strconv.Itoa(lev.Ktot),
			fg(lev.Dx), fg(lev.RMS), fg(lev.Max), strconv.Itoa(lev.Cycles),
		}); err != nil {
			return
		}
	}
	w.Flush()
	return w.Error()
}
