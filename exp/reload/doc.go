// Package reload provides experimental manifest hot-reload for abload.
//
// Reconciler is the core type and performs:
// 1. diff the next manifest against the last one it saw
// 2. mark changed and removed bundles stale, then every bundle depending on them
// 3. install the next manifest in the loader
// 4. unload stale bundles from the loader, dependents first
//
// Stale bundles are not reloaded; the next request fetches them again with the
// new version token.
//
// This package is EXPERIMENTAL and its API may change before v1.
package reload
