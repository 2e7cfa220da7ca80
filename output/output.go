// Package output implements the coverage engine's external output formats:
// per-base and downsampled TSV, the sample summary TSV, the coverage JS
// sidecar, the interval summary TSV, and the gap CSV. TSV encoding follows
// the teacher's github.com/grailbio/base/tsv usage (pileup/snp/output.go,
// pileup/snp/basestrand.go); compression-by-suffix follows
// pileup/snp/output.go's bgzf.NewWriter / interval/bedunion.go's gzip usage.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/biogo/hts/bgzf"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"

	"github.com/grailbio/covdepth/gapannotate"
)

// Create opens path for writing, wrapping it in a gzip or bgzf writer when
// the suffix says so (".gz", ".bgz"). The returned closer closes the
// compressor (if any) and the underlying file.
func Create(path string) (io.WriteCloser, error) {
	ctx := vcontext.Background()
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "output.Create: creating", path)
	}
	raw := f.Writer(ctx)

	switch {
	case strings.HasSuffix(path, ".bgz"):
		bw := bgzf.NewWriter(raw, 1)
		return &closerChain{w: bw, closers: []func() error{bw.Close, func() error { return f.Close(ctx) }}}, nil
	case fileio.DetermineType(path) == fileio.Gzip:
		gw := gzip.NewWriter(raw)
		return &closerChain{w: gw, closers: []func() error{gw.Close, func() error { return f.Close(ctx) }}}, nil
	default:
		return &closerChain{w: raw, closers: []func() error{func() error { return f.Close(ctx) }}}, nil
	}
}

type closerChain struct {
	w       io.Writer
	closers []func() error
}

func (c *closerChain) Write(p []byte) (int, error) { return c.w.Write(p) }

func (c *closerChain) Close() error {
	var first error
	for _, fn := range c.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PerBaseWriter emits "chr\tpos\tdepth" lines in ascending order, POS
// rendered 1-based as the teacher's text-output convention does
// (pileup/snp/output.go's writeChromPosRef).
type PerBaseWriter struct {
	tw *tsv.Writer
}

// NewPerBaseWriter wraps w.
func NewPerBaseWriter(w io.Writer) *PerBaseWriter { return &PerBaseWriter{tw: tsv.NewWriter(w)} }

// WriteBase implements coverage.PerBaseSink.
func (p *PerBaseWriter) WriteBase(contig string, pos int32, depth uint16) error {
	p.tw.WriteString(contig)
	p.tw.WriteUint32(uint32(pos + 1))
	p.tw.WriteUint32(uint32(depth))
	return p.tw.EndLine()
}

// Flush flushes any buffered output.
func (p *PerBaseWriter) Flush() error { return p.tw.Flush() }

// DownsampleWriter emits "chr\tpos\tmean" lines with mean rendered in
// default floating format.
type DownsampleWriter struct {
	tw *tsv.Writer
}

// NewDownsampleWriter wraps w.
func NewDownsampleWriter(w io.Writer) *DownsampleWriter {
	return &DownsampleWriter{tw: tsv.NewWriter(w)}
}

// WriteMean implements coverage.DownsampleSink.
func (d *DownsampleWriter) WriteMean(contig string, pos int32, mean float64) error {
	d.tw.WriteString(contig)
	d.tw.WriteUint32(uint32(pos + 1))
	d.tw.WriteString(strconv.FormatFloat(mean, 'g', -1, 64))
	return d.tw.EndLine()
}

// Flush flushes any buffered output.
func (d *DownsampleWriter) Flush() error { return d.tw.Flush() }

// SampleSummaryThresholds are the depth cutoffs the sample summary reports
// fractionAbove for.
var SampleSummaryThresholds = []int{1, 5, 10, 20, 50}

// WriteSampleSummary writes the single-row sample summary TSV.
func WriteSampleSummary(w io.Writer, median, mean float64, fractionAbove func(k int) float64) error {
	tw := tsv.NewWriter(w)
	tw.WriteString("Median Coverage")
	tw.WriteString("Mean Coverage")
	for _, k := range SampleSummaryThresholds {
		tw.WriteString(fmt.Sprintf("perc_bases_above_%d", k))
	}
	if err := tw.EndLine(); err != nil {
		return err
	}

	tw.WriteString(strconv.FormatFloat(median, 'g', -1, 64))
	tw.WriteString(strconv.FormatFloat(mean, 'g', -1, 64))
	for _, k := range SampleSummaryThresholds {
		tw.WriteString(strconv.FormatFloat(fractionAbove(k)*100, 'g', -1, 64))
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	return tw.Flush()
}

// coverageJS is the JSON body of the coverage-JS sidecar.
type coverageJS struct {
	Means   map[string]float64 `json:"means"`
	Medians map[string]float64 `json:"medians"`
}

// WriteCoverageJS writes the "covs = // NOJSON\n{...}" sidecar.
func WriteCoverageJS(w io.Writer, means, medians map[string]float64) error {
	if _, err := io.WriteString(w, "covs = // NOJSON\n"); err != nil {
		return err
	}
	body, err := json.MarshalIndent(coverageJS{Means: means, Medians: medians}, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// WriteIntervalSummary writes the two-row interval summary TSV: a header
// row naming every region, and a data row of per-region means (NaN coerced
// to 0) for sampleName.
func WriteIntervalSummary(w io.Writer, sampleName string, regionNames []string, means []float64) error {
	if len(regionNames) != len(means) {
		return errors.E("output.WriteIntervalSummary: regionNames/means length mismatch")
	}
	tw := tsv.NewWriter(w)
	tw.WriteString("sample")
	for _, name := range regionNames {
		tw.WriteString(name)
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	tw.WriteString(sampleName)
	for _, m := range means {
		if m != m { // NaN
			m = 0
		}
		tw.WriteString(strconv.FormatFloat(m, 'g', -1, 64))
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	return tw.Flush()
}

// GapColumns are the default gap-block columns, before any annotator
// columns.
var GapColumns = []string{"chr", "start", "end", "size", "mean", "median"}

// GapWriter emits one CSV row per annotated gap block: the default gap
// columns followed by a single "regions" annotator column (semicolon-joined
// region names, empty when the block overlaps no annotation region).
type GapWriter struct {
	w           io.Writer
	wroteHeader bool
}

// NewGapWriter wraps w.
func NewGapWriter(w io.Writer) *GapWriter { return &GapWriter{w: w} }

// EmitAnnotated implements gapannotate.AnnotatedSink.
func (g *GapWriter) EmitAnnotated(b gapannotate.AnnotatedBlock) error {
	if !g.wroteHeader {
		if _, err := io.WriteString(g.w, strings.Join(append(append([]string{}, GapColumns...), "regions"), ",")+"\n"); err != nil {
			return err
		}
		g.wroteHeader = true
	}
	names := append([]string(nil), b.RegionNames...)
	sort.Strings(names)
	row := []string{
		b.Contig,
		strconv.Itoa(int(b.Start) + 1),
		strconv.Itoa(int(b.End) + 1),
		strconv.Itoa(b.Size()),
		strconv.FormatFloat(b.Mean(), 'g', -1, 64),
		strconv.FormatFloat(b.Median(), 'g', -1, 64),
		strings.Join(names, ";"),
	}
	_, err := io.WriteString(g.w, strings.Join(row, ",")+"\n")
	return err
}

var _ gapannotate.AnnotatedSink = (*GapWriter)(nil)
