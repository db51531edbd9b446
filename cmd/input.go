package cmd

import (
	"fmt"
	"os"

	"github.com/notargets/lesproj/InputParameters"
)

const exampleFile = `
########################################
Title: "Point source"
Itot: 12
Jtot: 36
Ktot: 12
Xsize: 12.
Ysize: 36.
Zsize: 12.
Npx: 3
Npy: 9
BCs:
  Bottom:
    Dirichlet: 0
  Top:
    Dirichlet: 0
CoarseSolver: auto # Can be "fft", "direct" or "smooth"
Tolerance: 1.e-8
Source: [5, 7, 6]
Steps: 3
########################################
`

func readInput(ICFile string) (ip *InputParameters.InputParametersLES, err error) {
	if len(ICFile) == 0 {
		fmt.Printf("Example File:%s\n", exampleFile)
		err = fmt.Errorf("must supply an input parameters file (-I, --inputConditionsFile)")
		return
	}
	var data []byte
	if data, err = os.ReadFile(ICFile); err != nil {
		return
	}
	ip = &InputParameters.InputParametersLES{}
	if err = ip.Parse(data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ICFile, err)
	}
	return
}
