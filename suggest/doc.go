// Package suggest aggregates concurrent provider token streams into
// deduplicated suggestion lines.
//
// The Aggregator opens one stream per provider, reassembles tokens into
// complete lines, strips list markers, and interleaves emission round robin
// so no provider can drown out the others. A Session deduplicates across
// providers and across batches, matching case and punctuation
// insensitively and rejecting near duplicates by edit distance.
package suggest
