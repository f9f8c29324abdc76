// Package fastboot implements the client side of the fastboot
// bootloader protocol over USB bulk transfers.
//
// Commands are short ASCII strings; every response packet starts with a
// four-character status code (OKAY, INFO, DATA, FAIL). Payloads are
// negotiated with a download command announcing their length and then
// streamed in bounded chunks.
//
// A Client is bound to exactly one device and is not safe for
// concurrent use; the bus serializes bulk transfers per endpoint, so
// callers must serialize operations the same way.
package fastboot
