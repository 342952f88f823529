// Package channel tracks the state of the transceiver's RF channels.
//
// The frequency hopping core only reads channel state as a precondition.
// Transitions are driven by the surrounding driver and reported here.
package channel
