// Package datastore owns the site's database handle. It opens postgres or
// sqlite through gorm depending on the database URL and exposes the
// SELECT 1 round-trip the health endpoint reports on.
package datastore
