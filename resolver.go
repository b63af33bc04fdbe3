package abload

import (
	"context"
	"errors"
	"sync"
	"time"
)

// future is a one-shot result shared by every waiter of one bundle within a
// resolution call.
type future struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// resolution is the state of one root request. visited makes every bundle of
// the dependency DAG resolve once per call, however many paths reach it.
type resolution struct {
	root string
	// gen is the manifest generation the root was checked against.
	gen uint64

	mu      sync.Mutex
	visited map[string]*future
}

func newResolution(root string) *resolution {
	return &resolution{
		root:    root,
		visited: make(map[string]*future),
	}
}

func (res *resolution) visit(l *Loader, name string) *future {
	res.mu.Lock()
	if f, ok := res.visited[name]; ok {
		res.mu.Unlock()
		return f
	}
	return res.startLocked(l, name)
}

// revisit resolves name again once its previous attempt in this call has
// completed, e.g. after the bundle was unloaded before edges were attached.
func (res *resolution) revisit(l *Loader, name string) *future {
	res.mu.Lock()
	if f, ok := res.visited[name]; ok {
		select {
		case <-f.done:
		default:
			res.mu.Unlock()
			return f
		}
	}
	return res.startLocked(l, name)
}

// startLocked is called with res.mu held and releases it.
func (res *resolution) startLocked(l *Loader, name string) *future {
	f := newFuture()
	res.visited[name] = f
	res.mu.Unlock()

	l.request(name, NewCallback(func(_ string, _ Handle, err error) {
		f.complete(err)
	}), res)
	return f
}

// request registers cb on the node for name and starts a resolution when none
// is in flight for that node.
func (l *Loader) request(name string, cb *Callback, res *resolution) {
	for {
		n := l.reg.getOrCreate(name)
		n.mu.Lock()
		if n.detached {
			// Lost a race with Unload; the registry already holds a fresh node.
			n.mu.Unlock()
			continue
		}
		if n.state == StateLoaded {
			h := n.handle
			n.mu.Unlock()
			cb.invoke(name, h, nil)
			return
		}
		n.addCallbackLocked(cb)
		if n.busyLocked() {
			n.mu.Unlock()
			return
		}
		if n.state == StateFailed {
			// A failed bundle is retried by the next request.
			n.state = StateIdle
			n.err = nil
		}
		n.resolving = true
		n.mu.Unlock()

		if res == nil {
			res = newResolution(name)
		}
		go l.resolve(res, n)
		return
	}
}

func (l *Loader) resolve(res *resolution, n *node) {
	m, gen, err := l.manifest.get(l.ctx)
	if err != nil {
		l.fail(n, err)
		return
	}
	root := n.name == res.root
	if root {
		res.gen = gen
	}
	// Non-root bundles are covered by the root walk unless the manifest was
	// replaced since.
	if root || gen != res.gen {
		if _, err := TopoOrder(m, n.name); err != nil {
			l.log.Error().Err(err).Str("bundle", n.name).Msg("Bundle dependency cycle")
			l.fail(n, err)
			return
		}
	}
	if l.isDetached(n) {
		l.fail(n, ErrUnloaded)
		return
	}

	deps := uniqueDeps(n.name, m.DependenciesOf(n.name))
	n.setDeclared(deps)

	futures := make([]*future, len(deps))
	for i, dep := range deps {
		futures[i] = res.visit(l, dep)
	}
	for {
		failedDep, depErr := awaitAll(futures, deps)
		if l.isDetached(n) {
			l.fail(n, ErrUnloaded)
			return
		}
		missing := l.reg.unsettled(deps)
		if len(missing) == 0 {
			if depErr != nil && l.strict {
				l.fail(n, DependencyFailedError{Name: n.name, Dependency: failedDep, Err: depErr})
				return
			}
			if missing = l.reg.attach(n, deps); len(missing) == 0 {
				break
			}
		}
		// A dependency was unloaded before the edges to it existed.
		l.log.Debug().Str("bundle", n.name).Strs("dependencies", missing).Msg("Dependencies unloaded during resolution, resolving again")
		for i, dep := range deps {
			if contains(missing, dep) {
				futures[i] = res.revisit(l, dep)
			}
		}
	}
	l.fetch(n, m.VersionOf(n.name))
}

// awaitAll waits for every future and returns the first failure in
// dependency order.
func awaitAll(futures []*future, deps []string) (string, error) {
	var depErr error
	var failedDep string
	for i, f := range futures {
		<-f.done
		if f.err != nil && depErr == nil {
			depErr = f.err
			failedDep = deps[i]
		}
	}
	return failedDep, depErr
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (l *Loader) isDetached(n *node) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.detached
}

func (l *Loader) fetch(n *node, version string) {
	n.mu.Lock()
	n.resolving = false
	if n.detached {
		cbs := n.takeCallbacksLocked()
		n.mu.Unlock()
		notify(n.name, cbs, nil, ErrUnloaded)
		return
	}
	if err := n.transitionLocked(StateLoading); err != nil {
		n.mu.Unlock()
		l.fail(n, err)
		return
	}
	var ctx context.Context
	var cancel context.CancelFunc
	if l.fetchTimeout > 0 {
		ctx, cancel = context.WithTimeout(l.ctx, l.fetchTimeout)
	} else {
		ctx, cancel = context.WithCancel(l.ctx)
	}
	progress := &Progress{}
	n.cancel = cancel
	n.progress = progress
	n.err = nil
	n.mu.Unlock()

	start := time.Now()
	h, err := l.fetcher.Fetch(ctx, n.name, version, progress)
	cancel()
	if err == nil && h == nil {
		err = errors.New("fetcher returned nil handle")
	}
	l.metrics.observeFetch(start, err)
	l.complete(n, h, err)
}

func (l *Loader) complete(n *node, h Handle, err error) {
	n.mu.Lock()
	n.cancel = nil
	if n.detached {
		cbs := n.takeCallbacksLocked()
		n.mu.Unlock()
		if h != nil && err == nil {
			if relErr := l.releaseHandle(n.name, h, true); relErr != nil {
				l.log.Error().Err(relErr).Str("bundle", n.name).Msg("Release of unloaded bundle failed")
			}
		}
		notify(n.name, cbs, nil, ErrUnloaded)
		return
	}

	if err != nil {
		fetchErr := FetchFailedError{Name: n.name, Err: err}
		_ = n.transitionLocked(StateFailed)
		n.err = fetchErr
		cbs := n.takeCallbacksLocked()
		n.mu.Unlock()
		l.log.Error().Err(err).Str("bundle", n.name).Msg("Bundle loading failed")
		notify(n.name, cbs, nil, fetchErr)
		return
	}

	_ = n.transitionLocked(StateLoaded)
	n.handle = h
	cbs := n.takeCallbacksLocked()
	n.mu.Unlock()
	l.log.Debug().Str("bundle", n.name).Msg("Bundle loading succeeded")
	notify(n.name, cbs, h, nil)
}

// fail ends a resolution that never reached the fetcher.
func (l *Loader) fail(n *node, err error) {
	n.mu.Lock()
	n.resolving = false
	if n.detached {
		err = ErrUnloaded
	} else if n.state != StateFailed {
		_ = n.transitionLocked(StateFailed)
	}
	if !n.detached {
		n.err = err
	}
	cbs := n.takeCallbacksLocked()
	n.mu.Unlock()
	notify(n.name, cbs, nil, err)
}

func uniqueDeps(self string, deps []string) []string {
	out := make([]string, 0, len(deps))
	seen := make(map[string]struct{}, len(deps))
	for _, dep := range deps {
		if dep == "" || dep == self {
			continue
		}
		if _, ok := seen[dep]; ok {
			continue
		}
		seen[dep] = struct{}{}
		out = append(out, dep)
	}
	return out
}

// TopoOrder returns the bundles reachable from root in dependency-first order,
// root last. A cycle yields CycleDetectedError with the offending path.
func TopoOrder(m Manifest, root string) ([]string, error) {
	const (
		stateNew uint8 = iota
		stateVisiting
		stateDone
	)

	state := make(map[string]uint8)
	stack := make([]string, 0)
	stackPos := make(map[string]int)
	topo := make([]string, 0)

	var dfs func(name string) error
	dfs = func(name string) error {
		switch state[name] {
		case stateDone:
			return nil
		case stateVisiting:
			pos := stackPos[name]
			cycle := append([]string(nil), stack[pos:]...)
			cycle = append(cycle, name)
			return CycleDetectedError{Path: cycle}
		}

		state[name] = stateVisiting
		stackPos[name] = len(stack)
		stack = append(stack, name)

		for _, dep := range m.DependenciesOf(name) {
			if dep == "" {
				continue
			}
			if err := dfs(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		delete(stackPos, name)
		state[name] = stateDone
		topo = append(topo, name)
		return nil
	}

	if err := dfs(root); err != nil {
		return nil, err
	}
	return topo, nil
}
