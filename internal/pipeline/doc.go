// Package pipeline drives issues through the six processing stages. Each
// stage runs as an independent invocation: the runner claims the stage with
// the store's compare-and-set, executes one domain operation, commits the
// transition, and fires the next stage's endpoint without awaiting it. The
// recovery scanner and failure monitor close the loop for stalled and failed
// issues.
package pipeline
