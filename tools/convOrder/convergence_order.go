package main

import (
	"bufio"
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
)

var (
	csvFile string
)

func main() {
	csvFilePtr := flag.String("csvFile", csvFile, "file written by lesproj mms")
	flag.Parse()
	csvFile = *csvFilePtr
	if len(csvFile) == 0 {
		flag.Usage()
		os.Exit(1)
	}
	fmt.Printf("Input file: %v\n", csvFile)
	studies := readCSV(csvFile)
	titles := make([]string, 0, len(studies))
	for title := range studies {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	for _, title := range titles {
		cs := studies[title]
		fmt.Printf("Title = %s\n", cs.title)
		for i := range cs.dx {
			if i == 0 {
				fmt.Printf("%d, %v, %v, %v\n", cs.numPTS[i], cs.dx[i], cs.rms[i], cs.max[i])
				continue
			}
			fmt.Printf("%d, %v, %v, %v, order RMS = %5.2f, order Max = %5.2f\n",
				cs.numPTS[i], cs.dx[i], cs.rms[i], cs.max[i], cs.Order(cs.rms, i), cs.Order(cs.max, i))
		}
	}
}

type ConvergenceStudy struct {
	title    string
	numPTS   []int
	dx       []float64
	rms, max []float64
}

func NewConvergenceStudy(title string) *ConvergenceStudy {
	return &ConvergenceStudy{
		title: title,
	}
}

func (cs *ConvergenceStudy) Add(numPTS int, dx, rms, max float64) {
	cs.numPTS = append(cs.numPTS, numPTS)
	cs.dx = append(cs.dx, dx)
	cs.rms = append(cs.rms, rms)
	cs.max = append(cs.max, max)
}

// Order is the observed order of accuracy between entries i-1 and i
func (cs *ConvergenceStudy) Order(errs []float64, i int) float64 {
	return math.Log(errs[i-1]/errs[i]) / math.Log(cs.dx[i-1]/cs.dx[i])
}

func readCSV(csvFile string) (studies map[string]*ConvergenceStudy) {
	var (
		records      [][]string
		err          error
		f            *os.File
		ok           bool
		cs           *ConvergenceStudy
		dx, rms, max float64
	)
	studies = make(map[string]*ConvergenceStudy)
	if f, err = os.Open(csvFile); err != nil {
		panic(err)
	}
	defer f.Close()
	r := csv.NewReader(bufio.NewReader(f))
	if records, err = r.ReadAll(); err != nil {
		panic(err)
	}
	for i, rec := range records {
		if i == 0 {
			continue
		}
		title := rec[0]
		itot, _ := strconv.Atoi(rec[1])
		jtot, _ := strconv.Atoi(rec[2])
		ktot, _ := strconv.Atoi(rec[3])
		if cs, ok = studies[title]; !ok {
			cs = NewConvergenceStudy(title)
			studies[title] = cs
		}
		_, _ = fmt.Sscanf(rec[4], "%g", &dx)
		_, _ = fmt.Sscanf(rec[5], "%g", &rms)
		_, _ = fmt.Sscanf(rec[6], "%g", &max)
		cs.Add(itot*jtot*ktot, dx, rms, max)
	}
	return
}
