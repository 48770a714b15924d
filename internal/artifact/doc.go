// Package artifact stores finished per-document pipeline output together with
// the content hash of the source field it was computed from.
//
// Only Put writes hashes. Readers use LookupHash or, for a whole batch,
// LookupHashes to build the snapshot consulted by the hash gate.
package artifact
