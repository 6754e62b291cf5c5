// Package store defines the persistence contracts for event records and scrape
// run logs. Implementations live in internal/storage; this package must not
// import database drivers or concrete clients.
package store
