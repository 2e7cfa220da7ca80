// Package region's Set type is adapted from the teacher's BEDUnion
// (grailbio/bio/interval), generalized to retain per-entry opaque extra BED
// columns and to expose a per-contig walk used by the Region Writer.
package region

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
)

// getTokens identifies up to the first len(tokens) whitespace-delimited
// tokens of curLine, returning the number of tokens saved, plus whatever
// text (if any) followed them on the line.
func getTokens(tokens [][]byte, curLine []byte) (n int, restOfLine []byte) {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx, nil
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	if posEnd < lineLen {
		rest := posEnd
		for ; rest != lineLen; rest++ {
			if curLine[rest] > ' ' {
				break
			}
		}
		if rest != lineLen {
			restOfLine = curLine[rest:]
		}
	}
	return len(tokens), restOfLine
}

// NewSetOpts defines behavior of this package's region-set loaders.
type NewSetOpts struct {
	// SAMHeader enables reference-ID based lookup, which is more convenient
	// than string-based lookup once reads are being streamed off a provider.
	SAMHeader *sam.Header
	// OneBasedInput interprets the interval boundaries as one-based [start,
	// end] instead of the default zero-based [start, end).
	OneBasedInput bool
}

// Entry is a single input interval, with 0-based half-open coordinates, plus
// whatever extra BED columns followed the mandatory first three.
type Entry struct {
	ChrName string
	Start0  PosType
	End     PosType
	// Extra holds any columns beyond chr/start/end, verbatim. It is opaque
	// to this package.
	Extra string
}

// Set is an ordered, non-overlapping, merged collection of genomic
// intervals — the "target region set" of the coverage engine. It is built
// once and never mutated; its search state (below) is local to a single
// sequential walk, so concurrent walkers must each hold a Clone.
type Set struct {
	// nameMap is a chromosome-keyed map with disjoint-interval-set values,
	// stored as the length-2N endpoint encoding: interval k's start is at
	// nameMap[chr][2k], end at nameMap[chr][2k+1].
	nameMap map[string][]PosType
	// idMap is indexed by sam.Header reference ID; populated only when
	// NewSetOpts.SAMHeader was provided.
	idMap [][]PosType
	// entries preserves the regions in (contig, start) order, with their
	// opaque extra columns, for per-region output: merged when loaded by
	// NewSet, the input entries as given when built by NewSetFromEntries.
	entries []Entry

	lastChrIntervals []PosType
	lastChrName      string
	lastChrID        int
	lastPosPlus1     PosType
	isSequential     bool
}

func newSet() Set {
	return Set{
		nameMap:     make(map[string][]PosType),
		lastChrName: "",
		lastChrID:   -1,
	}
}

// ContainsByID reports whether the 0-based position pos on the contig with
// the given sam.Header reference ID is inside the set.
func (s *Set) ContainsByID(chrID int, pos PosType) bool {
	posPlus1 := pos + 1
	if chrID != s.lastChrID {
		s.lastChrID = chrID
		s.lastChrName = ""
		s.lastChrIntervals = s.idMap[chrID]
		if s.lastChrIntervals == nil {
			return false
		}
		idx := SearchPosTypes(s.lastChrIntervals, posPlus1)
		s.lastPosPlus1 = posPlus1
		s.isSequential = true
		return idx.Contained()
	}
	if s.lastChrIntervals == nil {
		return false
	}
	if s.isSequential && posPlus1 < s.lastPosPlus1 {
		s.isSequential = false
	}
	s.lastPosPlus1 = posPlus1
	return SearchPosTypes(s.lastChrIntervals, posPlus1).Contained()
}

// Regions returns the merged (from, to) pairs for a single contig, in
// ascending order.
func (s *Set) Regions(chrName string) [][2]PosType {
	ivs := s.nameMap[chrName]
	out := make([][2]PosType, 0, len(ivs)/2)
	for i := 0; i < len(ivs); i += 2 {
		out = append(out, [2]PosType{ivs[i], ivs[i+1]})
	}
	return out
}

// Endpoints returns the raw endpoint-encoded interval union for chrName
// (interval k is [endpoints[2k], endpoints[2k+1])).
func (s *Set) Endpoints(chrName string) []PosType {
	return s.nameMap[chrName]
}

// Entries returns every region across every contig, together with any
// opaque trailing BED columns. For a Set loaded by NewSet or NewSetFromPath
// these are the merged regions; for a Set built by NewSetFromEntries they
// are the input entries exactly as given (not merged, empty ones kept).
func (s *Set) Entries() []Entry {
	return s.entries
}

// Empty reports whether the set contains no intervals at all.
func (s *Set) Empty() bool {
	return len(s.entries) == 0
}

func (s *Set) nameToIDData(header *sam.Header) {
	samRefs := header.Refs()
	s.idMap = make([][]PosType, len(samRefs))
	for refID, ref := range samRefs {
		if refID != ref.ID() {
			panic("internal error: sam.Header ref.ID() != array position")
		}
		if ivs, ok := s.nameMap[ref.Name()]; ok {
			s.idMap[refID] = ivs
		}
	}
}

func scanSet(scanner *bufio.Scanner, opts NewSetOpts) (set Set, err error) {
	set = newSet()

	var startSubtract PosType
	if opts.OneBasedInput {
		startSubtract = 1
	}

	var tokens [3][]byte
	lineIdx := 0
	prevChr := ""
	totBases := 0
	var prevStart, prevEnd PosType
	var prevExtra string
	var chrIntervals []PosType

	flush := func() {
		if prevChr == "" {
			return
		}
		chrIntervals = append(chrIntervals, prevStart, prevEnd)
		set.nameMap[prevChr] = chrIntervals
		set.entries = append(set.entries, Entry{ChrName: prevChr, Start0: prevStart, End: prevEnd, Extra: prevExtra})
	}

	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		nToken, restOfLine := getTokens(tokens[:], curLine)
		if nToken == 0 {
			continue
		}
		if nToken != 3 {
			err = errors.E(fmt.Sprintf("region.scanSet: line %d has fewer than 3 tab-separated columns", lineIdx))
			return
		}
		curChr := string(tokens[0])
		var parsed int
		if parsed, err = strconv.Atoi(gunsafe.BytesToString(tokens[1])); err != nil {
			err = errors.E(err, fmt.Sprintf("line %d", lineIdx))
			return
		}
		start := PosType(parsed) - startSubtract
		if start < 0 {
			err = errors.E(fmt.Sprintf("region.scanSet: negative start coordinate on line %d", lineIdx))
			return
		}
		if parsed, err = strconv.Atoi(gunsafe.BytesToString(tokens[2])); err != nil {
			err = errors.E(err, fmt.Sprintf("line %d", lineIdx))
			return
		}
		end := PosType(parsed)
		if end < start || end >= PosTypeMax {
			err = errors.E(fmt.Sprintf("region.scanSet: invalid coordinate pair on line %d", lineIdx))
			return
		}
		extra := string(restOfLine)

		if curChr != prevChr {
			flush()
			if _, found := set.nameMap[curChr]; found {
				err = errors.E(fmt.Sprintf("region.scanSet: unsorted input (split chromosome %v)", curChr))
				return
			}
			prevChr = curChr
			chrIntervals = []PosType{}
			if end == start {
				prevChr = ""
				continue
			}
			prevStart, prevEnd, prevExtra = start, end, extra
			totBases += int(end - start)
			continue
		}
		if end == start {
			continue
		}
		if start > prevEnd {
			chrIntervals = append(chrIntervals, prevStart, prevEnd)
			set.entries = append(set.entries, Entry{ChrName: prevChr, Start0: prevStart, End: prevEnd, Extra: prevExtra})
			prevStart, prevEnd, prevExtra = start, end, extra
			totBases += int(end - start)
		} else {
			if start < prevStart {
				err = errors.E("region.scanSet: unsorted input")
				return
			}
			if end > prevEnd {
				totBases += int(end - prevEnd)
				prevEnd = end
			}
			// A merged interval's opaque trailer is that of the last line
			// merged into it, whether or not that line extended it; there is
			// no principled way to combine two BED trailers.
			prevExtra = extra
		}
	}
	if err = scanner.Err(); err != nil {
		return
	}
	flush()
	log.Printf("region: loaded %d target region(s), %d base(s) covered", len(set.entries), totBases)
	return
}

// NewSet loads a sorted (by contig, then start) tab-separated interval
// stream, merging touching/overlapping intervals and dropping empty ones.
func NewSet(reader io.Reader, opts NewSetOpts) (set Set, err error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	if set, err = scanSet(scanner, opts); err != nil {
		return
	}
	if opts.SAMHeader != nil {
		set.nameToIDData(opts.SAMHeader)
	}
	return
}

// NewSetFromPath is a wrapper for NewSet that takes a path (local, or any
// scheme grailbio/base/file knows how to open) instead of an io.Reader,
// auto-detecting gzip compression from the suffix.
func NewSetFromPath(path string, opts NewSetOpts) (set Set, err error) {
	ctx := vcontext.Background()
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	if fileio.DetermineType(path) == fileio.Gzip {
		if reader, err = gzip.NewReader(reader); err != nil {
			return
		}
	}
	return NewSet(reader, opts)
}

// ParseRegionString parses a region string of one of the forms
//
//	[contig ID]:[1-based first pos]-[last pos]
//	[contig ID]:[1-based pos]
//	[contig ID]
//
// returning a contig ID and 0-based interval boundaries. [0, PosTypeMax-1]
// is returned as the range if there is no positional restriction.
func ParseRegionString(region string) (result Entry, err error) {
	if len(region) == 0 {
		err = errors.E("region.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.IndexByte(region, ':')
	if colonPos == -1 {
		result.ChrName = region
		result.Start0 = 0
		result.End = PosTypeMax - 1
		return
	}
	if colonPos == 0 {
		err = errors.E("region.ParseRegionString: empty contig ID")
		return
	}
	result.ChrName = region[:colonPos]
	rangeStr := region[colonPos+1:]
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		pos1, perr := strconv.ParseInt(rangeStr, 10, 32)
		if perr != nil {
			err = errors.E(perr)
			return
		}
		if pos1 <= 0 {
			err = errors.E("region.ParseRegionString: position out of range")
			return
		}
		result.Start0 = PosType(pos1 - 1)
		result.End = PosType(pos1)
		return
	}
	start1Str := rangeStr[:dashPos]
	endStr := rangeStr[dashPos+1:]
	start1, serr := strconv.Atoi(start1Str)
	if serr != nil {
		err = errors.E(serr)
		return
	}
	if start1 <= 0 {
		err = errors.E("region.ParseRegionString: position out of range")
		return
	}
	end0, eerr := strconv.Atoi(endStr)
	if eerr != nil {
		err = errors.E(eerr)
		return
	}
	if end0 <= start1 || end0 >= PosTypeMax {
		err = errors.E("region.ParseRegionString: invalid range string")
		return
	}
	result.Start0 = PosType(start1 - 1)
	result.End = PosType(end0)
	return
}

// NewSetFromEntries builds a Set from a sorted []Entry. It ignores
// opts.OneBasedInput, since Entry.Start0 is defined as zero-based.
func NewSetFromEntries(sortedEntries []Entry, opts NewSetOpts) (set Set, err error) {
	set = newSet()
	prevChr := ""
	var prevStart, prevEnd PosType
	var chrIntervals []PosType
	flush := func() {
		if prevChr == "" {
			return
		}
		chrIntervals = append(chrIntervals, prevStart, prevEnd)
		set.nameMap[prevChr] = chrIntervals
	}
	for _, e := range sortedEntries {
		if e.Start0 < 0 || e.End < e.Start0 || e.End >= PosTypeMax {
			err = errors.E("region.NewSetFromEntries: invalid coordinate pair")
			return
		}
		if e.ChrName != prevChr {
			flush()
			if _, found := set.nameMap[e.ChrName]; found {
				err = errors.E(fmt.Sprintf("region.NewSetFromEntries: unsorted input (split chromosome %v)", e.ChrName))
				return
			}
			prevChr = e.ChrName
			chrIntervals = []PosType{}
			if e.End == e.Start0 {
				prevChr = ""
				continue
			}
			prevStart, prevEnd = e.Start0, e.End
			continue
		}
		if e.End == e.Start0 {
			continue
		}
		if e.Start0 > prevEnd {
			chrIntervals = append(chrIntervals, prevStart, prevEnd)
			prevStart, prevEnd = e.Start0, e.End
		} else {
			if e.Start0 < prevStart {
				err = errors.E("region.NewSetFromEntries: unsorted input")
				return
			}
			if e.End > prevEnd {
				prevEnd = e.End
			}
		}
	}
	flush()
	set.entries = append([]Entry{}, sortedEntries...)
	if opts.SAMHeader != nil {
		set.nameToIDData(opts.SAMHeader)
	}
	return
}

// Clone returns a new Set sharing the interval data but with its own search
// state, for safe concurrent sequential walks.
func (s *Set) Clone() Set {
	return Set{
		nameMap:     s.nameMap,
		idMap:       s.idMap,
		entries:     s.entries,
		lastChrName: "",
		lastChrID:   -1,
	}
}
