// Package session runs the interactive menu session of one serial line.
//
// A session multiplexes up to three byte sources in one loop: the local
// line, a remote TCP connection opened from the dial directory, and a second
// serial line opened by the bridge. Every read is bounded by a short
// timeout, so no source can stall the others.
//
// # Input
//
// Typed bytes are echoed and assembled into command lines. CR or LF ends a
// line, and any CR/LF directly following it in the same read is dropped.
// Lines go to the handler of the current mode, or are read as a menu choice
// when no mode is active.
//
// # Modes
//
// Each menu entry is a Handler built by a Factory. A handler renders
// its screen, consumes lines, and may hand back an Action such as a dial,
// a file transfer or a bridge to open. A panicking handler is reported on
// the terminal and the session returns to the menu.
//
// Typing ATM in any mode, except while a dial is connected in raw
// passthrough, hangs up any remote connection, ends any bridge and returns
// to the menu. When the session's own line has been surrendered to a bridge
// of another session, Run returns ErrSessionSurrendered instead.
package session
