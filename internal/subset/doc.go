// Package subset tracks per-document processing status for named subsets of a
// corpus table.
//
// Each (subset, document) pair holds exactly one status: unprocessed,
// in_process, or processed. Claims move unprocessed rows to in_process inside
// a single immediate write transaction, which is what makes concurrent claims
// disjoint. Mirror subsets follow the key set of their table: new keys are
// added as they appear, and bulk updates to the table reset them wholesale.
package subset
