// Package wire implements the host control-channel frame grammar.
//
// Outbound commands are framed as "#<id> <text>". Inbound frames are either
// correlated replies with the same prefix or opaque notifications. The
// fixed-size chunking used by the X client-message transport lives here too so
// it can be tested without a display.
package wire
