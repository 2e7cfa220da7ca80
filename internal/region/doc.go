/*Package region implements target-region-set operations (load, merge,
  contain, walk) for sets of genomic coordinates, represented as BED-style
  tab-separated interval files.

  Overlapping/adjacent intervals are merged on load; the resulting Set's
  interval data is never mutated, but ContainsByID keeps per-Set search
  state, so concurrent callers each use their own Clone. It assumes every
  position fits in a PosType (int32), matching the BAM coordinate limit.
*/
package region
