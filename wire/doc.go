// Package wire defines the JSON envelope exchanged between relay clients and
// the hub, together with the receiver filter used to select broadcast
// recipients.
//
// The wire field name "recieverFilter" (sic) is part of the protocol and is
// kept as-is for compatibility with existing senders.
package wire
