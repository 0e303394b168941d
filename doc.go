// Package dwarfs implements DwarFS, a read-optimized, content-deduplicated,
// compressed archive filesystem.
//
// Producers (package writer) scan a directory tree, segment regular file
// content with content-defined chunking, eliminate redundancy across and
// within files, and pack the surviving bytes into a small number of large
// compressed blocks. Consumers (package reader) open the resulting image and
// answer POSIX-style metadata queries and random-access reads without
// decompressing more than necessary.
//
// This package ties the producer and consumer pipelines together and defines
// the collaborator interfaces (os_access, byte_buffer_factory, categorizer,
// worker_group) that the core consumes, plus the error kinds every package
// surfaces.
package dwarfs
