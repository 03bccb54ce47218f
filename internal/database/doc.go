// Package database builds PostgreSQL connection pools for the document store.
package database
