// Package adapter defines the transport contract between the frequency
// hopping core and the device processor.
//
// A Transport carries three kinds of traffic: small mailbox commands in a
// normal or high priority queue, bulk copies into and out of fixed memory
// scopes, and direct register writes. Raw link failures are normalized to
// a small set of sentinel errors wrapped in a VendorError that keeps the
// original. INTERNAL is only reported by the device itself; a link failure
// matching no known token is UNKNOWN.
package adapter
