// Package llm provides a minimal OpenRouter chat completion client used by
// the scoring and article generation stages. It retries transient failures
// with capped exponential backoff and tolerates the JSON formatting quirks
// common in model output.
package llm
