// Package transfer implements the XMODEM, YMODEM and ASCII file transfer
// protocols over a polled serial channel.
//
// Every wait is bounded by a wall-clock deadline, so a transfer always ends
// with a result or one of the package's sentinel errors. Transfers run
// synchronously on the caller's goroutine.
//
// # Protocols
//
// XMODEM moves 128-byte blocks with an 8-bit checksum and starts on the
// receiver's NAK. YMODEM batch accepts NAK or 'C' as the start request,
// sends a block 0 header carrying the file name and size, then 1024-byte
// blocks with the same checksum. ASCII streams text lines with no
// acknowledgment.
//
// # Metrics
//
// An Engine counts blocks, retries and finished transfers in Metrics.
package transfer
