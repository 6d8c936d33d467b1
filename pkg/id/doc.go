// Package id generates process-unique, time-ordered connection identifiers.
//
// Registry bookkeeping keys live connections by these ids rather than by
// transport handle identity, which is not reliable for equality. Ids are
// 16 bytes, a big-endian millisecond timestamp followed by a per-millisecond
// sequence, so they sort by creation time and never repeat within a process.
package id
