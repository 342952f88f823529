// Package audit records every control action as one JSON line.
//
// Entries carry the caller, the target, the parameters, the outcome and the
// recovery action code. The file is rotated by size and age.
package audit
