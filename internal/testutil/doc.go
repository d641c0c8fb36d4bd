// Package testutil provides shared helpers for tests: scripted retrieval
// adapters with controllable delays and failures, and terse constructors for
// retrieval items. Production code must not import this package.
package testutil
