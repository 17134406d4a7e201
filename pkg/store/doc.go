// Package store holds the persistence layer for profiles, tenants, and
// tenant memberships.
//
// The Store interface is what the session and tenant packages consume;
// SQLStore is the production implementation over database/sql and runs
// unchanged against PostgreSQL (lib/pq) and SQLite.
package store
