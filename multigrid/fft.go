package multigrid

import (
	"context"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/notargets/lesproj/comm"
	"github.com/notargets/lesproj/transpose"
)

// realFFT transforms periodic real lines to and from the halfcomplex layout
//
//	[ re0, re1, im1, re2, im2, ... ]   (plus re(n/2) last when n is even)
//
// in which slot p holds wavenumber (p+1)/2. The cosine and sine parts of one
// wavenumber share the eigenvalue of the periodic second difference, so the
// operator stays diagonal in this real basis.
type realFFT struct {
	n     int
	fft   *fourier.FFT
	coeff []complex128
}

func newRealFFT(n int) *realFFT {
	rf := &realFFT{n: n}
	if n > 1 {
		rf.fft = fourier.NewFFT(n)
		rf.coeff = make([]complex128, n/2+1)
	}
	return rf
}

// forward replaces line with its halfcomplex transform
func (rf *realFFT) forward(line []float64) {
	if rf.n == 1 {
		return
	}
	rf.fft.Coefficients(rf.coeff, line)
	line[0] = real(rf.coeff[0])
	for m := 1; 2*m-1 < rf.n; m++ {
		line[2*m-1] = real(rf.coeff[m])
		if 2*m < rf.n {
			line[2*m] = imag(rf.coeff[m])
		}
	}
}

// inverse is the normalized inverse of forward
func (rf *realFFT) inverse(line []float64) {
	if rf.n == 1 {
		return
	}
	rf.coeff[0] = complex(line[0], 0)
	for m := 1; 2*m-1 < rf.n; m++ {
		var im float64
		if 2*m < rf.n {
			im = line[2*m]
		}
		rf.coeff[m] = complex(line[2*m-1], im)
	}
	rf.fft.Sequence(line, rf.coeff)
	scale := 1 / float64(rf.n)
	for n := range line {
		line[n] *= scale
	}
}

// eigenvalues of the periodic second difference for every halfcomplex slot
func (rf *realFFT) eigenvalues(idh2 float64) (lam []float64) {
	lam = make([]float64, rf.n)
	for p := range lam {
		m := (p + 1) / 2
		lam[p] = 2 * (math.Cos(2*math.Pi*float64(m)/float64(rf.n)) - 1) * idh2
	}
	return
}

/*
fftSolver solves the coarsest level exactly with the pencil transposes:

	Z -> X, real FFT in x, X -> Y, real FFT in y, Y -> X -> Z,
	tridiagonal solve in z for every (x, y) wavenumber pair,
	and the same path back with the inverse transforms.
*/
type fftSolver struct {
	c          comm.Comm
	tr         *transpose.Transposer
	z, x, y    *transpose.Pencil
	fx, fy     *realFFT
	lamX, lamY []float64
	line       []float64
	cp, dp     []float64
	singular   bool
}

func (fs *fftSolver) kind() CoarseSolver { return CoarseFFT }

func newFFTSolver(lev *Level, c comm.Comm) (fs *fftSolver, err error) {
	g := lev.Grid
	fs = &fftSolver{c: c, singular: lev.BC.Singular()}
	if fs.tr, err = transpose.New(g, c); err != nil {
		return
	}
	fs.z = fs.tr.NewPencil(transpose.ZPencil)
	fs.x = fs.tr.NewPencil(transpose.XPencil)
	fs.y = fs.tr.NewPencil(transpose.YPencil)
	fs.fx = newRealFFT(g.Itot)
	fs.fy = newRealFFT(g.Jtot)
	fs.lamX = fs.fx.eigenvalues(lev.idx2)
	fs.lamY = fs.fy.eigenvalues(lev.idy2)
	fs.line = make([]float64, g.Jtot)
	fs.cp = make([]float64, g.Ktot)
	fs.dp = make([]float64, g.Ktot)
	return
}

func (fs *fftSolver) solve(ctx context.Context, lev *Level) (err error) {
	lev.wallRHS(fs.z.Data)
	if err = fs.toSpectral(ctx); err != nil {
		return
	}
	fs.tridiagonal(lev)
	if err = fs.toPhysical(ctx); err != nil {
		return
	}
	lev.X.UnpackInterior(fs.z.Data)
	return
}

func (fs *fftSolver) toSpectral(ctx context.Context) (err error) {
	if err = fs.tr.ToXPencil(ctx, fs.x, fs.z); err != nil {
		return
	}
	fs.linesX(fs.fx.forward)
	if err = fs.tr.ToYPencil(ctx, fs.y, fs.x); err != nil {
		return
	}
	fs.linesY(fs.fy.forward)
	if err = fs.tr.FromYPencil(ctx, fs.x, fs.y); err != nil {
		return
	}
	return fs.tr.ToZPencil(ctx, fs.z, fs.x)
}

func (fs *fftSolver) toPhysical(ctx context.Context) (err error) {
	if err = fs.tr.ToXPencil(ctx, fs.x, fs.z); err != nil {
		return
	}
	if err = fs.tr.ToYPencil(ctx, fs.y, fs.x); err != nil {
		return
	}
	fs.linesY(fs.fy.inverse)
	if err = fs.tr.FromYPencil(ctx, fs.x, fs.y); err != nil {
		return
	}
	fs.linesX(fs.fx.inverse)
	return fs.tr.ToZPencil(ctx, fs.z, fs.x)
}

func (fs *fftSolver) linesX(op func(line []float64)) {
	ni, nj, nk := fs.tr.Dims(transpose.XPencil)
	for n := 0; n < nj*nk; n++ {
		op(fs.x.Data[n*ni : (n+1)*ni])
	}
}

func (fs *fftSolver) linesY(op func(line []float64)) {
	ni, nj, nk := fs.tr.Dims(transpose.YPencil)
	line := fs.line[:nj]
	for k := 0; k < nk; k++ {
		for i := 0; i < ni; i++ {
			base := i + k*ni*nj
			for j := range line {
				line[j] = fs.y.Data[base+j*ni]
			}
			op(line)
			for j, val := range line {
				fs.y.Data[base+j*ni] = val
			}
		}
	}
}

// tridiagonal solves every z column of the spectral Z pencil in place with the
// Thomas algorithm
func (fs *fftSolver) tridiagonal(lev *Level) {
	var (
		g          = lev.Grid
		ni, nj, nk = fs.tr.Dims(transpose.ZPencil)
		i0, j0, _  = fs.tr.Offsets(transpose.ZPencil)
		stride     = ni * nj
		cp, dp     = fs.cp, fs.dp
	)
	for j := 0; j < nj; j++ {
		for i := 0; i < ni; i++ {
			var (
				lam  = fs.lamX[i0+i] + fs.lamY[j0+j]
				base = i + j*ni
				pin  = fs.singular && i0+i == 0 && j0+j == 0
			)
			for k := 0; k < nk; k++ {
				lower, diag, upper := lev.homogeneousZ(k + g.Kstart)
				diag += lam
				rhs := fs.z.Data[base+k*stride]
				if pin && k == 0 {
					lower, diag, upper, rhs = 0, 1, 0, 0
				}
				if k > 0 {
					m := diag - lower*cp[k-1]
					cp[k] = upper / m
					dp[k] = (rhs - lower*dp[k-1]) / m
				} else {
					cp[k] = upper / diag
					dp[k] = rhs / diag
				}
			}
			fs.z.Data[base+(nk-1)*stride] = dp[nk-1]
			for k := nk - 2; k >= 0; k-- {
				fs.z.Data[base+k*stride] = dp[k] - cp[k]*fs.z.Data[base+(k+1)*stride]
			}
		}
	}
}
