// Package wal provides the write-ahead log of a value store: a durable,
// ordered record of the integer identifiers minted for RDF values (IRIs,
// blank nodes and literals).
//
// A value store calls LogMint for every value it assigns a fresh
// identifier to, and AwaitDurable before it commits anything that depends
// on that identifier. Each call to LogMint is assigned an LSN (log
// sequence number); when AwaitDurable(lsn) returns, the record with that
// LSN and every record before it are on stable storage.
//
// Records are handed to a single background writer through a bounded
// queue. The writer batches encoded records, appends them to the active
// "segment" file in the WAL directory, and forces the segment according to
// the configured SyncPolicy. When a segment reaches its size limit it is
// finalized and compressed, and a new segment is started.
//
// On disk, a segment is a sequence of frames:
//
//	[uint32 length][payload][uint32 crc32c(payload)]
//
// where the payload is a single newline-terminated JSON object. The first
// frame of every segment is a header; compressed segments end with a
// summary frame carrying a checksum of the uncompressed segment.
//
// This package does not replay the log. When HasInitialSegments reports
// true, the owning store is expected to read the existing segments, for
// example with a Reader or the walutil.Replay function, and restore its
// dictionary from them.
package wal
