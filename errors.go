package abload

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnloaded is delivered to callbacks whose bundle was unloaded while it was
// still resolving or fetching.
var ErrUnloaded = errors.New("bundle unloaded before load completed")

// ErrClosed means the loader has been closed.
var ErrClosed = errors.New("loader closed")

// FetchFailedError means the underlying fetch returned no handle.
type FetchFailedError struct {
	Name string
	Err  error
}

func (e FetchFailedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch bundle %q: no handle returned", e.Name)
	}
	return fmt.Sprintf("fetch bundle %q: %v", e.Name, e.Err)
}

func (e FetchFailedError) Unwrap() error {
	return e.Err
}

// ManifestUnavailableError means the manifest could not be fetched.
type ManifestUnavailableError struct {
	Err error
}

func (e ManifestUnavailableError) Error() string {
	if e.Err == nil {
		return "manifest unavailable"
	}
	return "manifest unavailable: " + e.Err.Error()
}

func (e ManifestUnavailableError) Unwrap() error {
	return e.Err
}

// RefusedUnloadError is a warning: the bundle still has dependents and the
// unload was not forced. Loader state is unchanged.
type RefusedUnloadError struct {
	Name       string
	Dependents []string
}

func (e RefusedUnloadError) Error() string {
	return fmt.Sprintf("bundle %q is still depended on by: %s", e.Name, strings.Join(e.Dependents, ", "))
}

// CycleDetectedError means the manifest declares a dependency cycle reachable
// from the requested bundle.
type CycleDetectedError struct {
	Path []string
}

func (e CycleDetectedError) Error() string {
	if len(e.Path) == 0 {
		return "bundle dependency cycle detected"
	}
	return "bundle dependency cycle detected: " + strings.Join(e.Path, " -> ")
}

// DependencyFailedError is reported in strict mode when a dependency failed
// and the dependent was therefore not fetched.
type DependencyFailedError struct {
	Name       string
	Dependency string
	Err        error
}

func (e DependencyFailedError) Error() string {
	return fmt.Sprintf("bundle %q: dependency %q failed: %v", e.Name, e.Dependency, e.Err)
}

func (e DependencyFailedError) Unwrap() error {
	return e.Err
}
