// Command ferry mirrors a remote media catalog to a destination channel in
// small, resumable batches.
//
// Run "ferry config init" to write a sample configuration, "ferry auth" to
// authorize the destination account and "ferry run" to process a batch.
package main
