// Package mysql holds the MySQL plumbing shared by the gateway's stores:
// pooled connections and the embedded schema migrations.
package mysql
