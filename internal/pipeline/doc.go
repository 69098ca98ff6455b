// Package pipeline implements the staged classification state machine for
// citing papers. The orchestrator drives each (tracked, citing) pair through
// the ledger stages: cheap first-pass classification, escalation to the
// full-text pass when the first pass is uncertain, write-once disposition,
// and summarization for same-task pairs only.
package pipeline
