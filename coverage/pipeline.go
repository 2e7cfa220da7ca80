package coverage

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/covdepth/internal/provider"
	"github.com/grailbio/covdepth/internal/region"
)

// SoftMailboxLimit and HardMailboxLimit are the two backpressure
// high-water marks: a stage logs once its outbound mailbox passes the soft
// limit, and blocks (via the channel's own buffered-send semantics) once it
// reaches the hard limit. Each pipeline message here is one contig's worth
// of work (a whole span array, or a whole depth vector), so in practice a
// run's contig count never approaches either mark; the limits are kept as
// named constants so the mailbox sizing policy is explicit rather than an
// arbitrary channel capacity.
const (
	SoftMailboxLimit = 20000
	HardMailboxLimit = 100000
)

// mailbox is a bounded single-consumer channel with a soft/hard limit pair.
type mailbox struct {
	ch   chan interface{}
	name string
}

func newMailbox(name string, hardLimit int) *mailbox {
	return &mailbox{ch: make(chan interface{}, hardLimit), name: name}
}

func (m *mailbox) send(v interface{}) {
	if len(m.ch) >= SoftMailboxLimit {
		log.Debug.Printf("coverage: %s mailbox above soft limit (%d queued)", m.name, len(m.ch))
	}
	m.ch <- v
}

func (m *mailbox) close() { close(m.ch) }

// contigSpans is the Span Reader's atomic per-contig output message.
type contigSpans struct {
	contig provider.Contig
	index  int
	spans  []Span
	err    error
}

// contigDepth is the Depth Computer's atomic per-contig output message.
type contigDepth struct {
	contig provider.Contig
	depth  []uint16
	err    error
}

// RunOpts configures the three-stage pipeline.
type RunOpts struct {
	Provider    *provider.Provider
	Targets     *region.Set
	Filters     Filters
	KmerIndexFn KmerIndexFunc
	KmerFactors KmerFactors
	Writer      *RegionWriter
	// RegionNameAt names the target region a position belongs to, for
	// per-region stats; may be nil when RegionWriterOpts.PerRegionStats is
	// false.
	RegionNameAt func(contig string, pos PosType) string
}

// contigOrder returns the contigs to process, in target-set contig order
// (spec's "across contigs, the order matches the target-set contig order").
func contigOrder(targets *region.Set, header *provider.Header) []provider.Contig {
	seen := make(map[string]bool)
	var ordered []provider.Contig
	for _, e := range targets.Entries() {
		if seen[e.ChrName] {
			continue
		}
		seen[e.ChrName] = true
		if c, ok := header.ContigByName(e.ChrName); ok {
			ordered = append(ordered, c)
		}
	}
	return ordered
}

// Run drives the Span Reader → Depth Computer → Region Writer pipeline,
// processing each target contig in order, with the three stages running as
// independent goroutines connected by bounded mailboxes (spec §5). It
// returns the first error encountered by any stage (a ProviderFailure from
// the Span Reader or Depth Computer, or whatever the Writer's sinks
// return), having drained and closed every stage cleanly first.
func Run(opts RunOpts) error {
	header, err := opts.Provider.GetHeader()
	if err != nil {
		return Wrap(ProviderFailure, err, "reading header")
	}
	contigs := contigOrder(opts.Targets, header)

	spanBox := newMailbox("span-reader", HardMailboxLimit)
	depthBox := newMailbox("depth-computer", HardMailboxLimit)

	go func() {
		defer spanBox.close()
		for _, c := range contigs {
			spans, err := ReadContig(opts.Provider, c.Name, c.RefIndex, opts.Filters, opts.KmerIndexFn)
			spanBox.send(contigSpans{contig: c, index: c.RefIndex, spans: spans, err: err})
			if err != nil {
				return
			}
		}
	}()

	go func() {
		defer depthBox.close()
		for msg := range spanBox.ch {
			m := msg.(contigSpans)
			if m.err != nil {
				depthBox.send(contigDepth{contig: m.contig, err: m.err})
				return
			}
			depth := ComputeDepth(m.spans, opts.Filters.Weighted, opts.KmerFactors)
			depthBox.send(contigDepth{contig: m.contig, depth: depth})
		}
	}()

	var firstErr error
	for msg := range depthBox.ch {
		m := msg.(contigDepth)
		if m.err != nil {
			if firstErr == nil {
				firstErr = m.err
			}
			continue
		}
		if firstErr != nil {
			continue
		}
		var nameAt func(PosType) string
		if opts.RegionNameAt != nil {
			contigName := m.contig.Name
			nameAt = func(pos PosType) string { return opts.RegionNameAt(contigName, pos) }
		}
		if err := opts.Writer.WriteContig(m.contig.Name, m.depth, opts.Targets, nameAt); err != nil {
			firstErr = err
		}
	}
	return firstErr
}
