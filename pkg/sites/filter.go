package sites

import (
	"bufio"
	"context"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"

	"github.com/antoinenguyen27/siren/pkg/logger"
)

// RefreshInterval is how often the allowlist file is re-read.
const RefreshInterval = 30 * time.Second

// Filter restricts the sites the agent works on to an allowlist file of host
// names and glob patterns, one per line. A missing or empty file allows every
// site; loopback hosts are always allowed.
type Filter struct {
	mu       sync.RWMutex
	path     string
	hosts    map[string]bool
	patterns []glob.Glob
	raw      []string
	loadedAt time.Time
	now      func() time.Time
}

// NewFilter creates a Filter backed by path. A leading ~/ is expanded.
func NewFilter(path string) *Filter {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	f := &Filter{path: path, now: time.Now}
	f.reload()
	return f
}

func (f *Filter) reload() {
	hosts, patterns, raw := map[string]bool{}, []glob.Glob{}, []string{}

	file, err := os.Open(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.G(context.TODO()).WithError(err).WithField("path", f.path).Error("failed to open site allowlist")
		}
	} else {
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			host := hostFromLine(scanner.Text())
			if host == "" {
				continue
			}
			if strings.ContainsAny(host, "*?") {
				if g, err := glob.Compile(host, '.'); err == nil {
					patterns = append(patterns, g)
					raw = append(raw, host)
					continue
				}
			}
			hosts[host] = true
		}
		file.Close()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosts, f.patterns, f.raw = hosts, patterns, raw
	f.loadedAt = f.now()
}

// hostFromLine extracts a host name or pattern from one allowlist line.
func hostFromLine(line string) string {
	line = strings.ToLower(strings.TrimSpace(line))
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	if !strings.Contains(line, "://") {
		line = "https://" + line
	}
	if u, err := url.Parse(line); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	host := line[strings.Index(line, "://")+3:]
	if i := strings.IndexAny(host, "/:"); i >= 0 {
		host = host[:i]
	}
	return host
}

func (f *Filter) stale() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.now().Sub(f.loadedAt) > RefreshInterval
}

// Allowed reports whether the agent may act on rawURL.
func (f *Filter) Allowed(rawURL string) (bool, error) {
	if f.stale() {
		f.reload()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false, errors.Wrapf(err, "invalid url %q", rawURL)
	}
	host := strings.ToLower(u.Hostname())
	if isLoopback(host) {
		return true, nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.hosts) == 0 && len(f.patterns) == 0 {
		return true, nil
	}
	if f.hosts[host] {
		return true, nil
	}
	for _, p := range f.patterns {
		if p.Match(host) {
			return true, nil
		}
	}
	return false, nil
}

// Entries returns the configured hosts followed by the glob patterns.
func (f *Filter) Entries() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.hosts)+len(f.raw))
	for h := range f.hosts {
		out = append(out, h)
	}
	sort.Strings(out)
	return append(out, f.raw...)
}

func isLoopback(host string) bool {
	switch host {
	case "localhost", "0.0.0.0":
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
