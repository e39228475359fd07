// Package serialport opens serial lines and tracks, process-wide, which line
// is owned by which consumer.
//
// A line is either owned by the Port Worker that opened it, or surrendered
// to a bridge that took it over, never both. The Registry is the single
// place where that ownership changes.
//
// Port identifiers are compared in normalized form: trimmed, and on Windows
// upper-cased, so "com4" and "COM4" name the same line there. Open failures are reported as *OpenError; errors.Is
// with ErrDeviceAbsent tells a missing device from a transient failure.
package serialport
