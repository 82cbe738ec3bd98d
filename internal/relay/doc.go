// Package relay implements the stream relay engine.
//
// A client upgrades to a WebSocket on the relay path, sends one handshake frame and then
// sends messages that are either embedded HTTP requests, CONNECT requests, or raw bytes for
// an attached tunnel. Embedded requests are rebuilt, stamped with a fixed identity header
// bundle, executed against the upstream named by the request itself, and the complete
// response is written back as one binary message. CONNECT opens a raw TCP socket that is
// spliced with the stream until either side closes.
//
// Every connection is a Session registered with the process Hub. Sessions share nothing but
// the Hub's counters.
package relay
