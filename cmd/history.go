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
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/lesproj/diagnostics"
	"github.com/notargets/lesproj/pressure"
)

// HistoryCmd represents the history command
var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List the pressure solves recorded in a history database",
	Long: `
Lists the solves recorded by "lesproj pressure --historyDB file", optionally
restricted to one run (the Title of its input file).

lesproj history --historyDB file [--run title] [-v]`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var (
			store *diagnostics.Store
			recs  []pressure.SolveRecord
			path  = viper.GetString("historyDB")
		)
		run, _ := cmd.Flags().GetString("run")
		if path == "" {
			return fmt.Errorf("must supply a history database (--historyDB)")
		}
		if _, err = os.Stat(path); err != nil {
			return
		}
		if store, err = diagnostics.Open(path); err != nil {
			return
		}
		defer store.Close()
		if recs, err = store.ListSolves(context.Background(), run); err != nil {
			return
		}
		PrintHistory(os.Stdout, recs, viper.GetBool("verbose"))
		return
	},
}

func init() {
	rootCmd.AddCommand(HistoryCmd)
	HistoryCmd.Flags().String("run", "", "only list the solves of this run")
}

func PrintHistory(w io.Writer, recs []pressure.SolveRecord, verbose bool) {
	fmt.Fprintf(w, "%-20s %4s %-20s %5s %-14s %-22s %6s %11s %11s %12s\n",
		"Run", "Seq", "Start", "Ranks", "Grid", "Status", "Cycles", "Initial", "Final", "Duration")
	for _, rec := range recs {
		fmt.Fprintf(w, "%-20s %4d %-20s %5d %-14s %-22s %6d %11.4e %11.4e %12v\n",
			rec.Run, rec.Seq, rec.Start.Format("2006-01-02 15:04:05"), rec.Ranks,
			fmt.Sprintf("%dx%dx%d", rec.Itot, rec.Jtot, rec.Ktot), rec.Status, rec.Cycles,
			rec.InitialResidual, rec.Residual, rec.Duration)
		if verbose {
			for n, r := range rec.History {
				fmt.Fprintf(w, "\tcycle %3d: %.4e\n", n+1, r)
			}
		}
	}
}
