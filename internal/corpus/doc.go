// Package corpus stores source documents addressed by composite keys.
//
// Documents live in named tables; each row carries a set of string fields,
// one of which is designated as the hash field by the pipeline. Bulk imports
// report which keys were inserted, changed, or left untouched so the
// invalidation step can react to them.
package corpus
