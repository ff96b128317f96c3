// Package store declares the run ledger persistence contracts. Implementations
// live in other packages; this package must not import database drivers.
package store
