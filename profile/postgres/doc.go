// Package postgres implements goIdentity.ProfileStore on PostgreSQL with
// pgx, and ships the profile schema as embedded golang-migrate migrations.
//
// The three pending-change columns are written together: a CHECK
// constraint keeps them all set or all NULL, and every statement that
// touches them sets or clears all three.
package postgres
