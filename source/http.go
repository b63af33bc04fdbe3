package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/IQzhan/abload"
)

// HTTP downloads bundles from <BaseURL>/<bundle name>?v=<version>; the
// manifest lives at <BaseURL>/<Target>.
type HTTP struct {
	BaseURL string
	Target  string
	Client  *http.Client
}

func NewHTTP(baseURL string, target string, client *http.Client) (*HTTP, error) {
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("new http source: invalid base url %q", baseURL)
	}
	if target == "" {
		return nil, fmt.Errorf("new http source: target is empty")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{BaseURL: strings.TrimRight(baseURL, "/"), Target: target, Client: client}, nil
}

func (h *HTTP) Fetch(ctx context.Context, name string, version string, progress *abload.Progress) (abload.Handle, error) {
	u := h.BaseURL + "/" + url.PathEscape(name)
	if version != "" {
		u += "?v=" + url.QueryEscape(version)
	}
	data, err := h.get(ctx, u, progress)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("bundle", name).Str("url", u).Int("size", len(data)).Msg("Bundle downloaded")
	return &Bundle{Name: name, Version: version, Data: data}, nil
}

func (h *HTTP) FetchManifest(ctx context.Context) (abload.Manifest, error) {
	data, err := h.get(ctx, h.BaseURL+"/"+url.PathEscape(h.Target), nil)
	if err != nil {
		return nil, err
	}
	return abload.ParseManifest(data)
}

func (h *HTTP) get(ctx context.Context, u string, progress *abload.Progress) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("get %s: unexpected status %d", u, resp.StatusCode)
	}
	data, err := readAll(resp.Body, resp.ContentLength, progress)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	return data, nil
}
