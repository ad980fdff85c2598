// Package issue persists newsletter issues and their pipeline state in
// SQLite. The workflow_state column is the single source of truth for
// pipeline progress; every mutation of it funnels through StartStep,
// CompleteStep, or FailWorkflow so concurrent triggers race on one
// compare-and-set code path.
package issue
