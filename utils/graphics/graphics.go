package graphics

import (
	"math"
	"time"

	"github.com/notargets/avs/chart2d"
	utils2 "github.com/notargets/avs/utils"
)

func SleepFor(milliseconds int) {
	time.Sleep(time.Duration(milliseconds) * time.Millisecond)
}

type LineChart struct {
	Chart    *chart2d.Chart2D
	ColorMap *utils2.ColorMap
}

func NewLineChart(width, height int, xmin, xmax, fmin, fmax float64) (lc *LineChart) {
	lc = &LineChart{
		Chart:    chart2d.NewChart2D(width, height, float32(xmin), float32(xmax), float32(fmin), float32(fmax)),
		ColorMap: utils2.NewColorMap(-1, 1, 1),
	}
	go lc.Chart.Plot()
	return
}

func (lc *LineChart) Plot(graphDelay time.Duration, x, f []float64, lineColor float64, lineName string) {
	/*
		lineColor goes from -1 (red) to 1 (blue)
	*/
	if err := lc.Chart.AddSeries(lineName, x, f,
		chart2d.NoGlyph, chart2d.Solid, lc.ColorMap.GetRGB(float32(lineColor))); err != nil {
		panic("unable to add graph series")
	}
	time.Sleep(graphDelay)
}

/*
ConvergenceChart draws log10 of the residual against the cycle number, one
line per solve, coloured from red (first solve) to blue (last).
*/
func ConvergenceChart(histories [][]float64, names []string, graphDelay time.Duration) (lc *LineChart) {
	var (
		maxCycles  = 1
		fmin, fmax = math.MaxFloat64, -math.MaxFloat64
		xs, fs     [][]float64
	)
	for _, hist := range histories {
		x, f := make([]float64, len(hist)), make([]float64, len(hist))
		for n, r := range hist {
			x[n] = float64(n + 1)
			f[n] = math.Log10(math.Max(r, math.SmallestNonzeroFloat64))
			fmin, fmax = math.Min(fmin, f[n]), math.Max(fmax, f[n])
		}
		if len(hist) > maxCycles {
			maxCycles = len(hist)
		}
		xs, fs = append(xs, x), append(fs, f)
	}
	if fmin > fmax {
		fmin, fmax = -1, 0
	}
	lc = NewLineChart(1000, 800, 0, float64(maxCycles), math.Floor(fmin), math.Ceil(fmax))
	for n := range xs {
		color := 1.
		if len(xs) > 1 {
			color = -1 + 2*float64(n)/float64(len(xs)-1)
		}
		lc.Plot(graphDelay, xs[n], fs[n], color, names[n])
	}
	return
}
