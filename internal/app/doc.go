// Package app provides the application service layer.
//
// Orchestrates use cases: video job submission and execution, job status
// lookup across the in-memory tracker and optional remote sources, single
// image swaps and periodic retention of files and finished jobs.
// Sits between HTTP handlers and the core packages. Depends on domain
// interfaces and core types, not on concrete adapters.
package app
