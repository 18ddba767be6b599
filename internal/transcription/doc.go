// Package transcription implements the streaming client for the
// recognition server: the per-connection session state machine, segment
// ingestion with joined-text deduplication, and the process-wide session
// registry used to route multiplexed server responses.
package transcription
