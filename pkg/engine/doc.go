// Package engine implements the deployment orchestration core: it walks an
// ordered stack of control-plane resource descriptors, applies each one,
// polls readiness conditions for monitorable kinds under per-kind timeout
// budgets, and accumulates results without aborting on individual failures.
package engine
