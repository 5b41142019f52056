// Package memory provides in-memory implementations of the leadbus
// repositories for tests, examples and database-free deployments.
package memory
