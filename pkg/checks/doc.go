// Package checks implements the post-deployment verification suite. Each
// check probes one aspect of a deployed stack (control plane health, mesh
// configuration, routing, certificates) and reports a pass/fail outcome plus
// weighted findings for anything it flags.
package checks
