// Package telemetry fans hopping, channel and interrupt events out to SSE
// clients.
//
// Every event gets a monotonic ID. The hub keeps the most recent events in a
// bounded buffer so a client reconnecting with Last-Event-ID resumes where
// it stopped.
package telemetry
