// Package postgres implements goEnroll.AccountStore and goEnroll.DeviceRegistry
// on PostgreSQL through pgx.
//
// The scan decision runs inside one transaction that locks the account row,
// and registration is a single INSERT ... ON CONFLICT upsert guarded by the
// claim predicate, so at most one concurrent registration per external
// reference succeeds.
package postgres
