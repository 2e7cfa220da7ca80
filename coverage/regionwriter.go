package coverage

import "github.com/grailbio/covdepth/internal/region"

// PerBaseSink receives one emitted (contig, pos, depth) record at a time,
// in ascending position order within a contig.
type PerBaseSink interface {
	WriteBase(contig string, pos PosType, depth uint16) error
}

// DownsampleSink receives one emitted (contig, pos, windowMean) record per
// downsampling window.
type DownsampleSink interface {
	WriteMean(contig string, pos PosType, mean float64) error
}

// GapSink receives one (contig, pos, depth) tuple per
// position, in order, when gap detection is enabled. It is satisfied by
// coverage/gap.Detector.
type GapSink interface {
	Observe(contig string, pos PosType, depth uint16) error
}

// RegionWriterOpts configures a RegionWriter.
type RegionWriterOpts struct {
	PerBase          PerBaseSink // may be nil
	Downsample       DownsampleSink
	DownsampleFactor int // 0 disables downsampling
	PerRegionStats   bool
	Gap              GapSink // may be nil
}

// RegionWriter walks a contig's depth vector against its target
// sub-regions, emitting per-base records, maintaining statistics, and
// feeding the gap detector. One RegionWriter instance serves an entire
// sample: its histograms accumulate across every contig processed.
type RegionWriter struct {
	opts RegionWriterOpts

	Global        Histogram
	regionHist    []*Histogram // parallel to regionNames, only if PerRegionStats
	regionNames   []string
	regionHistIdx map[string]*Histogram
}

// NewRegionWriter constructs a RegionWriter with empty statistics.
func NewRegionWriter(opts RegionWriterOpts) *RegionWriter {
	w := &RegionWriter{opts: opts}
	if opts.PerRegionStats {
		w.regionHistIdx = make(map[string]*Histogram)
	}
	return w
}

// RegionHistogram returns the per-region histogram for name, creating it on
// first reference. Only meaningful when RegionWriterOpts.PerRegionStats is
// set; panics otherwise, since the caller has no business asking.
func (w *RegionWriter) RegionHistogram(name string) *Histogram {
	if !w.opts.PerRegionStats {
		panic("coverage: RegionHistogram called without PerRegionStats")
	}
	h, ok := w.regionHistIdx[name]
	if !ok {
		h = &Histogram{}
		w.regionHistIdx[name] = h
		w.regionNames = append(w.regionNames, name)
		w.regionHist = append(w.regionHist, h)
	}
	return h
}

// RegionNames returns every region name referenced so far, in first-seen
// order.
func (w *RegionWriter) RegionNames() []string { return w.regionNames }

// downsampleWindow accumulates one downsampling window's samples for a
// single contig walk.
type downsampleWindow struct {
	sum   float64
	count int
}

func (d *downsampleWindow) add(depth uint16) {
	d.sum += float64(depth)
	d.count++
}

func (d *downsampleWindow) mean() float64 {
	if d.count == 0 {
		return 0
	}
	return d.sum / float64(d.count)
}

func (d *downsampleWindow) reset() { d.sum, d.count = 0, 0 }

// WriteContig emits per-base records for every sub-region of contigName
// found in targets, in ascending order, against depth (indexed 0-based,
// positions at/beyond len(depth) are depth 0). regionNameAt, given a
// position, names the target region it belongs to (used only when
// PerRegionStats is set); the Region Writer doesn't need to know region
// boundaries beyond what targets already encodes, so regionNameAt is the
// caller's region.Entry lookup, typically a closure over the same
// region.Set used to build the walk.
func (w *RegionWriter) WriteContig(contigName string, depth []uint16, targets *region.Set, regionNameAt func(pos PosType) string) error {
	regions := targets.Regions(contigName)
	for _, r := range regions {
		window := downsampleWindow{}
		emitOffset := 0
		if w.opts.DownsampleFactor > 0 {
			emitOffset = w.opts.DownsampleFactor / 2
		}
		windowPos := 0
		emittedThisWindow := false

		for pos := r[0]; pos < r[1]; pos++ {
			var d uint16
			if int(pos) < len(depth) {
				d = depth[pos]
			}

			w.Global.Add(d)
			if w.opts.PerRegionStats && regionNameAt != nil {
				w.RegionHistogram(regionNameAt(pos)).Add(d)
			}

			if w.opts.Gap != nil {
				if err := w.opts.Gap.Observe(contigName, pos, d); err != nil {
					return err
				}
			}

			if w.opts.DownsampleFactor > 0 {
				switch {
				case windowPos < emitOffset:
					window.add(d)
				case windowPos == emitOffset:
					if w.opts.Downsample != nil {
						if err := w.opts.Downsample.WriteMean(contigName, pos, window.mean()); err != nil {
							return err
						}
					}
					window.reset()
					emittedThisWindow = true
				default:
					// Past the emission offset: these samples are not part
					// of any emitted window (explicit per-window reset
					// policy; see DESIGN.md).
				}
				windowPos++
				if windowPos == w.opts.DownsampleFactor {
					windowPos = 0
					emittedThisWindow = false
				}
				continue
			}

			if w.opts.PerBase != nil {
				if err := w.opts.PerBase.WriteBase(contigName, pos, d); err != nil {
					return err
				}
			}
		}

		// Partial trailing window: the region ended before this window's
		// emission offset was reached, so emit whatever accumulated rather
		// than discarding it.
		if w.opts.DownsampleFactor > 0 && !emittedThisWindow && window.count > 0 {
			if w.opts.Downsample != nil {
				if err := w.opts.Downsample.WriteMean(contigName, r[1]-1, window.mean()); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
