// Package batch runs a worker over an ordered sequence with bounded
// parallelism, returning results in input order.
package batch
