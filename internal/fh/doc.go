// Package fh is the host-side control surface of the transceiver's
// frequency hopping subsystem.
//
// The device processor holds two ping-pong hop tables, A and B, of up to
// MaxTableFrames frames each. One table drives live hopping while the other
// can be rewritten, and SetActiveTable swaps them at the next hop edge.
//
// Table transfers are too large for the mailbox and run in two phases. The
// frames are first bulk written into the staging scope, then a
// high-priority mailbox command asks the device to ingest them into the
// named table. The Controller tracks each transfer as Staged, Committed or
// Failed, and a transfer whose trigger fails is never treated as
// committed. Reads mirror this: a mailbox command stages the data into the
// readback scope and the host bulk reads it.
//
// Every operation returns nil or an *ActionError whose ActionCode grades the
// recovery the caller must perform. Hop is the exception to the
// precondition rule: it silently does nothing when no hopping channel is
// PRIMED or RF_ENABLED, where Configure reports ErrCheckParam when a
// channel is not in STANDBY.
package fh
