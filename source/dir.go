package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/IQzhan/abload"
)

// Dir reads bundles from a local build output folder laid out as
// <Root>/<bundle name>, with the manifest at <Root>/<Target>.
type Dir struct {
	Root   string
	Target string
}

func NewDir(root string, target string) (*Dir, error) {
	if root == "" {
		return nil, fmt.Errorf("new dir source: root is empty")
	}
	if target == "" {
		return nil, fmt.Errorf("new dir source: target is empty")
	}
	return &Dir{Root: root, Target: target}, nil
}

func (d *Dir) Fetch(ctx context.Context, name string, version string, progress *abload.Progress) (abload.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(d.Root, filepath.FromSlash(name))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat bundle: %w", err)
	}
	data, err := readAll(&ctxReader{ctx: ctx, r: f}, info.Size(), progress)
	if err != nil {
		return nil, fmt.Errorf("read bundle %s: %w", path, err)
	}

	log.Debug().Str("bundle", name).Str("path", path).Int("size", len(data)).Msg("Bundle read from disk")
	return &Bundle{Name: name, Version: version, Data: data}, nil
}

func (d *Dir) FetchManifest(ctx context.Context) (abload.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(d.Root, d.Target)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return abload.ParseManifest(data)
}
