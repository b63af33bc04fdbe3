// Package abload provides a concurrent, reference-counted bundle loader.
//
// It offers:
// - manifest-driven transitive dependency resolution with diamond deduplication
// - at most one in-flight fetch per bundle name, shared by every requester
// - dependents tracking so a bundle is only unloaded once nothing depends on it
// - weighted loading progress over a bundle and its dependencies
// - fail-fast dependency cycle detection
package abload
