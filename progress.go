package abload

// GetProgress returns the weighted completion of name in [0,1].
//
// The bundle itself and each of its direct dependencies weigh 1/(1+n) where n
// is the direct dependency count; a dependency contributes its own
// GetProgress, so deeper subtrees are folded in recursively. Self progress is
// 0 when idle, the sampled fetch progress while loading and 1 once loaded or
// failed. Unknown bundles report 0.
func (l *Loader) GetProgress(name string) float64 {
	return l.progressOf(name, make(map[string]struct{}))
}

func (l *Loader) progressOf(name string, path map[string]struct{}) float64 {
	if _, ok := path[name]; ok {
		return 0
	}
	n, ok := l.reg.get(name)
	if !ok {
		return 0
	}

	n.mu.Lock()
	var self float64
	switch {
	case n.state.IsTerminal():
		self = 1
	case n.state == StateLoading:
		self = n.progress.Value()
	}
	declared := n.declared
	n.mu.Unlock()

	if len(declared) == 0 {
		return self
	}

	path[name] = struct{}{}
	defer delete(path, name)

	weight := 1 / float64(len(declared)+1)
	value := self * weight
	for _, dep := range declared {
		value += l.progressOf(dep, path) * weight
	}
	return clamp01(value)
}
