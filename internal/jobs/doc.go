// Package jobs tracks asynchronous video jobs from acceptance to a terminal state.
package jobs
