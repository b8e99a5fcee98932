// Package search runs launches against a built index and derives locality
// orders for queries from the first hits of an approximate traversal.
package search
