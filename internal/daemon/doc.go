// Package daemon runs the scrobbled background process: it connects the
// MPRIS monitor to the decision engine, drives the sampling ticker, and
// supervises the delivery loop under a single-instance lock.
package daemon
