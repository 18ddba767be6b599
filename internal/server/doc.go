// Package server implements the HTTP API for monitoring and managing
// the service: session listings, statistics, configuration and
// Prometheus metrics.
package server
