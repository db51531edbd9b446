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
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/lesproj/InputParameters"
	"github.com/notargets/lesproj/comm"
	"github.com/notargets/lesproj/diagnostics"
	"github.com/notargets/lesproj/field"
	"github.com/notargets/lesproj/grid"
	"github.com/notargets/lesproj/pressure"
	"github.com/notargets/lesproj/tracing"
	"github.com/notargets/lesproj/utils"
	"github.com/notargets/lesproj/utils/graphics"
)

type PressureRun struct {
	ICFile       string
	Graph        bool
	Perf         bool
	Verbose      bool
	HistoryDB    string
	OTelEndpoint string
	Delay        time.Duration
}

// PressureSummary is what the root rank saw of a run
type PressureSummary struct {
	Records      []pressure.SolveRecord
	Instructions uint64 // Summed over the ranks, only with Perf
}

// PressureCmd represents the pressure command
var PressureCmd = &cobra.Command{
	Use:   "pressure",
	Short: "Pressure solves of a point source on Npx*Npy ranks",
	Long: `
Runs Npx*Npy ranks in process, places a unit divergence source in one cell and
solves for the pressure Steps times, the source strength growing by one each
time so that every solve after the first starts from the previous pressure.

The LU factorization of the direct coarse solver uses LAPACK through cgo when
built with "go build -tags netlib" (needs a C compiler and OpenBLAS).

lesproj pressure -I input.yaml [--graph] [--perf] [--historyDB file] [--otelEndpoint url]`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		pr := &PressureRun{}
		pr.ICFile, _ = cmd.Flags().GetString("inputConditionsFile")
		pr.Graph, _ = cmd.Flags().GetBool("graph")
		pr.Perf, _ = cmd.Flags().GetBool("perf")
		dr, _ := cmd.Flags().GetInt("delay")
		pr.Delay = time.Duration(dr) * time.Millisecond
		pr.Verbose = viper.GetBool("verbose")
		pr.HistoryDB = viper.GetString("historyDB")
		pr.OTelEndpoint = viper.GetString("otelEndpoint")
		var ip *InputParameters.InputParametersLES
		if ip, err = readInput(pr.ICFile); err != nil {
			return
		}
		if pr.Verbose {
			ip.Print()
		}
		var summary *PressureSummary
		if summary, err = RunPressure(context.Background(), pr, ip); err != nil {
			return
		}
		if pr.Perf {
			fmt.Printf("%d instructions retired over %d ranks\n", summary.Instructions, ip.Npx*ip.Npy)
		}
		if pr.Graph {
			var (
				hists = make([][]float64, len(summary.Records))
				names = make([]string, len(summary.Records))
			)
			for n, rec := range summary.Records {
				hists[n] = rec.History
				names[n] = fmt.Sprintf("solve %d", rec.Seq)
			}
			graphics.ConvergenceChart(hists, names, pr.Delay)
			fmt.Println("Press Ctrl-C to exit")
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt)
			<-stop
		}
		return
	},
}

func init() {
	rootCmd.AddCommand(PressureCmd)
	PressureCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file for input parameters like:\n\t- Itot, Jtot, Ktot\n\t- Npx, Npy")
	PressureCmd.Flags().BoolP("graph", "g", false, "display the residual history of every solve")
	PressureCmd.Flags().IntP("delay", "d", 0, "milliseconds of delay between plotted lines")
	PressureCmd.Flags().Bool("perf", false, "count the CPU instructions retired by the ranks (linux)")
	PressureCmd.Flags().String("otelEndpoint", "", "OTLP/HTTP endpoint receiving a span per solve")
	_ = viper.BindPFlag("otelEndpoint", PressureCmd.Flags().Lookup("otelEndpoint"))
}

func RunPressure(ctx context.Context, pr *PressureRun, ip *InputParameters.InputParametersLES) (summary *PressureSummary, err error) {
	var (
		gc    = ip.GridConfig()
		pc    pressure.Config
		store *diagnostics.Store
		steps = ip.Steps
	)
	if err = gc.Validate(); err != nil {
		return
	}
	if pc, err = ip.PressureConfig(); err != nil {
		return
	}
	for n, ext := range []int{gc.Itot, gc.Jtot, gc.Ktot} {
		if ip.Source[n] < 0 || ip.Source[n] >= ext {
			err = fmt.Errorf("%w: source %v outside of the %dx%dx%d grid",
				grid.ErrConfig, ip.Source, gc.Itot, gc.Jtot, gc.Ktot)
			return
		}
	}
	if steps < 1 {
		steps = 1
	}
	shutdown, err := tracing.Setup(ctx, "lesproj", pr.OTelEndpoint)
	if err != nil {
		return
	}
	defer func() { _ = shutdown(context.Background()) }()
	if pr.HistoryDB != "" {
		if store, err = diagnostics.Open(pr.HistoryDB); err != nil {
			return
		}
		defer func() { _ = store.Close() }()
	}
	summary = &PressureSummary{}
	err = comm.Run(ctx, gc.Npx*gc.Npy, func(ctx context.Context, c comm.Comm) (err error) {
		var (
			topo grid.Topology
			g    *grid.Grid
			s    *pressure.Solver
		)
		if topo, err = grid.NewTopology(gc.Npx, gc.Npy, c.Rank()); err != nil {
			return
		}
		if g, err = grid.New(gc, topo); err != nil {
			return
		}
		opts := []pressure.Option{pressure.WithVerbose(pr.Verbose), pressure.WithRun(ip.Title)}
		if store != nil {
			opts = append(opts, pressure.WithRecorder(store))
		}
		if s, err = pressure.New(g, c, pc, opts...); err != nil {
			return
		}
		div := s.NewField("div")
		solve := func() (err error) {
			var res *pressure.Result
			for n := 0; n < steps; n++ {
				placeSource(div, ip.Source, float64(n+1))
				if res, err = s.Solve(ctx, div); err != nil {
					return
				}
				if utils.IsNan(res.Pressure.Data) {
					return fmt.Errorf("rank %d: pressure of solve %d is not finite", c.Rank(), n+1)
				}
			}
			return
		}
		if !pr.Perf {
			if err = solve(); err != nil {
				return
			}
		} else {
			var (
				count uint64
				total float64
			)
			if count, err = utils.CountInstructions(solve); err != nil {
				return
			}
			if total, err = comm.AllReduceScalar(ctx, c, comm.Sum, float64(count)); err != nil {
				return
			}
			if c.Rank() == comm.Root {
				summary.Instructions = uint64(total)
			}
		}
		if c.Rank() == comm.Root {
			summary.Records = s.History()
		}
		for _, rec := range s.History() {
			comm.Printf(c, "solve %d: %s after %d cycles, residual %.3e -> %.3e, %v\n",
				rec.Seq, rec.Status, rec.Cycles, rec.InitialResidual, rec.Residual, rec.Duration)
		}
		return
	})
	return
}

// placeSource zeroes div and sets the cell at global index src to strength,
// on the rank that owns it
func placeSource(div *field.Field3D, src [3]int, strength float64) {
	g := div.Grid()
	div.Fill(0)
	i, j := src[0]-g.IOffset()+g.Istart, src[1]-g.JOffset()+g.Jstart
	if i >= g.Istart && i < g.Iend && j >= g.Jstart && j < g.Jend {
		div.Set(i, j, src[2]+g.Kstart, strength)
	}
}
