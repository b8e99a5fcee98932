// Package resource governs the limits shared by one search run.
//
// Three budgets are tracked:
//
//   - Device memory: every device buffer allocation reserves bytes up front
//     and fails fast with ErrMemoryLimitExceeded when the budget is spent.
//   - Streams: the number of command streams that may execute concurrently.
//   - Dataset IO: a token bucket that throttles point/query ingestion.
//
// A nil *Controller is valid and imposes no limits.
package resource
