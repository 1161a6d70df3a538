// Package main provides the entry point for the DocVault application.
// It initializes and runs a web server using the Fiber framework that lets
// users upload documents, organize them in folders, and share them with
// groups through access levels. The application uses gorm for data
// persistence, extracts document text through an external service so files
// are searchable by content, and keeps a per-user materialized cache of the
// resolved access graph for fast visibility checks.
package main
