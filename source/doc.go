// Package source provides abload fetchers and manifest providers for the places
// bundles are published to: a local directory, an HTTP server, an
// S3-compatible bucket, plus manifest documents kept in Redis or Postgres.
//
// Every fetcher returns a *Bundle handle.
package source
