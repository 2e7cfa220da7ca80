// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

/*
covdepth computes per-base depth-of-coverage for a single sample over a set
of target regions from a coordinate-sorted, indexed BAM or CRAM file.
*/

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/grailbio/covdepth/coverage"
)

var (
	targetsPath     = flag.String("L", "", "Target region BED path (required)")
	indexPath       = flag.String("index", "", "Alignment index path; defaults to <bampath>+.bai or .crai")
	referencePath   = flag.String("reference", "", "Reference FASTA path; required for CRAM input")
	perBaseOut      = flag.String("o", "", "Per-base output TSV path (chr, pos, depth); compression inferred from .gz/.bgz suffix")
	downsampleOut   = flag.String("do", "", "Downsampled output TSV path (chr, pos, windowMean)")
	downsampleDF    = flag.Int("df", 0, "Downsampling window size; 0 disables downsampling")
	minMQ           = flag.Int("minMQ", 1, "Minimum mapping quality; reads below this are skipped")
	allowDuplicates = flag.Bool("a", false, "Count PCR/optical-duplicate-flagged reads")
	overlapModeFlag = flag.String("om", "none", "Paired-end overlap clipping mode: none or half")
	sampleSummaryOut = flag.String("samplesummary", "", "Sample summary TSV output path")
	coverageJSOut   = flag.String("covo", "", "Coverage JS sidecar output path")
	intervalSummaryOut = flag.String("intervalsummary", "", "Per-region interval summary TSV output path")
	gapsOut         = flag.String("gaps", "", "Gap block CSV output path; enables gap detection")
	gapThreshold    = flag.Int("gt", 5, "Depth threshold below which a position counts toward a gap block")
	gapTargetPath   = flag.String("gaptarget", "", "Gap target BED path; when set, only gap blocks overlapping it are emitted")
	refgenePath     = flag.String("refgene", "", "Annotation region BED path (chr/start/end/name); required with -gaps")
	kmerPath        = flag.String("kmer", "", "Kmer profile path; enables kmer-weighted depth")
	kmerFactorsOut  = flag.String("okmer", "", "Resolved per-sample kmer factor dump path (debug)")
)

func covdepthUsage() {
	fmt.Printf("Usage: %s [OPTIONS] bampath\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = covdepthUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "covdepth: exactly one positional argument (bampath) required; got %d\n", flag.NArg())
		covdepthUsage()
		os.Exit(1)
	}
	bamPath := flag.Arg(0)

	overlapMode, ok := coverage.ParseOverlapMode(*overlapModeFlag)
	if !ok {
		fmt.Fprintf(os.Stderr, "covdepth: -om must be 'none' or 'half', got %q\n", *overlapModeFlag)
		os.Exit(1)
	}

	opts := Opts{
		BamPath:            bamPath,
		IndexPath:          *indexPath,
		ReferencePath:      *referencePath,
		TargetsPath:        *targetsPath,
		PerBaseOut:         *perBaseOut,
		DownsampleOut:      *downsampleOut,
		DownsampleFactor:   *downsampleDF,
		MinMQ:              *minMQ,
		AllowDuplicates:    *allowDuplicates,
		OverlapMode:        overlapMode,
		SampleSummaryOut:   *sampleSummaryOut,
		CoverageJSOut:      *coverageJSOut,
		IntervalSummaryOut: *intervalSummaryOut,
		GapsOut:            *gapsOut,
		GapThreshold:       *gapThreshold,
		GapTargetPath:      *gapTargetPath,
		RefgenePath:        *refgenePath,
		KmerPath:           *kmerPath,
		KmerFactorsOut:     *kmerFactorsOut,
		SampleName:         sampleNameFromPath(bamPath),
	}

	if err := opts.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "covdepth: %v\n", err)
		os.Exit(1)
	}

	ctx := vcontext.Background()
	if err := Run(ctx, opts); err != nil {
		if coverage.KindOf(err) == coverage.UsageError || coverage.KindOf(err) == coverage.ConfigError || coverage.KindOf(err) == coverage.InputMismatch {
			fmt.Fprintf(os.Stderr, "covdepth: %v\n", err)
			os.Exit(1)
		}
		log.Panicf("%v", err)
	}
	log.Debug.Printf("exiting")
}

// sampleNameFromPath derives a sample name from the alignment file's base
// name, stripping the .bam/.cram suffix.
func sampleNameFromPath(path string) string {
	base := filepath.Base(path)
	for _, suffix := range []string{".bam", ".cram"} {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return base
}
