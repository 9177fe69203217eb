// Package history is a best-effort, in-memory index of terminal
// JobRecords, fed by a dird.JobQueue whenever a record reaches a terminal
// status, for status reporting.
//
// It is backed by modernc.org/sqlite opened against ":memory:" and queried
// through github.com/Masterminds/squirrel select builders. It holds no live
// queue membership and evaporates on process exit, so it carries no
// durability guarantee; the live queue state remains entirely in
// dird.JobQueue.
//
// Writes are fed through a bounded internal channel so a slow or busy
// sqlite connection never blocks the dispatch loop that calls Record;
// a full channel drops the entry and logs, rather than blocking.
package history
