// Package testutil provides deterministic data generators and brute-force
// references for tests and benchmarks.
package testutil
