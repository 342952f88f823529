// Package command routes validated API intents to the hopping, GPIO and
// channel controllers.
//
// Every command runs under the timeout of its class. Control actions are
// audited and their outcome is published as telemetry.
package command
