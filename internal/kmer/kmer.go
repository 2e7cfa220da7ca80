// Package kmer loads a per-sample kmer-count matrix and derives the
// multiplicative per-kmer depth weight vector for one sample: divide each
// row by its sum, each column by its sum, invert, and map zero/NaN results
// to 1.0. Matrix storage and row/column reduction use gonum.org/v1/gonum,
// already part of the wider example pack's dependency surface (kortschak-ins,
// kortschak-loopy both depend on gonum.org/v1/gonum).
package kmer

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Profile is a loaded kmer-count matrix: one row per sample, one column per
// kmer bucket.
type Profile struct {
	SampleNames []string
	counts      *mat.Dense // rows x cols
}

// NumKmers returns the number of kmer columns (K in the span's kmerIndex ∈
// [0, K) range).
func (p *Profile) NumKmers() int {
	_, c := p.counts.Dims()
	return c
}

// Load parses a tab-separated kmer-count matrix: a header row
// "sample\tkmer0\tkmer1\t..." followed by one row per sample.
func Load(r io.Reader) (*Profile, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64<<20)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, errors.E(err, "kmer.Load: reading header")
		}
		return nil, errors.E("kmer.Load: empty kmer profile")
	}
	header := strings.Split(scanner.Text(), "\t")
	if len(header) < 2 {
		return nil, errors.E("kmer.Load: header has no kmer columns")
	}
	numKmers := len(header) - 1

	var names []string
	var rows []float64
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != numKmers+1 {
			return nil, errors.E("kmer.Load: row column count does not match header")
		}
		names = append(names, fields[0])
		for _, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, errors.E(err, "kmer.Load: parsing count")
			}
			rows = append(rows, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, "kmer.Load: scanning body")
	}
	if len(names) == 0 {
		return nil, errors.E("kmer.Load: no sample rows")
	}

	return &Profile{SampleNames: names, counts: mat.NewDense(len(names), numKmers, rows)}, nil
}

// LoadFromPath opens path (auto-detecting gzip compression by suffix) and
// loads the kmer profile from it.
func LoadFromPath(path string) (*Profile, error) {
	ctx := vcontext.Background()
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "kmer.LoadFromPath: opening", path)
	}
	defer f.Close(ctx)

	reader := io.Reader(f.Reader(ctx))
	if fileio.DetermineType(path) == fileio.Gzip {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, errors.E(err, "kmer.LoadFromPath: gzip", path)
		}
		defer gz.Close()
		reader = gz
	}
	return Load(reader)
}

// SampleFactors returns the normalized, inverted per-kmer weight vector for
// sampleName: each row is divided by its sum, each column by its sum, the
// result inverted (1/x), with zero and NaN results mapped to 1.0.
func (p *Profile) SampleFactors(sampleName string) ([]float64, error) {
	rowIdx := -1
	for i, n := range p.SampleNames {
		if n == sampleName {
			rowIdx = i
			break
		}
	}
	if rowIdx == -1 {
		return nil, errors.E("kmer.SampleFactors: sample", sampleName, "not present in kmer profile")
	}

	rows, cols := p.counts.Dims()
	normalized := mat.NewDense(rows, cols, nil)
	normalized.Copy(p.counts)

	for r := 0; r < rows; r++ {
		row := normalized.RawRowView(r)
		sum := floats.Sum(row)
		if sum != 0 {
			floats.Scale(1/sum, row)
		}
	}
	for c := 0; c < cols; c++ {
		col := mat.Col(nil, c, normalized)
		sum := floats.Sum(col)
		if sum == 0 {
			continue
		}
		for r := 0; r < rows; r++ {
			normalized.Set(r, c, normalized.At(r, c)/sum)
		}
	}

	factors := make([]float64, cols)
	for c := 0; c < cols; c++ {
		v := normalized.At(rowIdx, c)
		if v == 0 || v != v { // v != v is the NaN test
			factors[c] = 1.0
			continue
		}
		factors[c] = 1 / v
	}
	return factors, nil
}
