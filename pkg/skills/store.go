package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/antoinenguyen27/siren/pkg/logger"
)

const (
	keySeparator  = "__"
	fileExtension = ".md"
	defaultDomain = "unknown.site"
	unnamedSkill  = "Unnamed skill"
)

// ErrInvalidKey is returned when a filename is not a valid repository key.
var ErrInvalidKey = errors.New("invalid skill filename")

var (
	domainDisallowed = regexp.MustCompile(`[^a-z0-9.-]`)
	nameDisallowed   = regexp.MustCompile(`[^a-z0-9]+`)
)

// Store is a flat directory of skill documents. Writes are not synchronised:
// concurrent saves to one key race and the last write wins.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore returns a Store rooted at dir. The directory is created on the first
// write.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// SaveResult describes a persisted skill.
type SaveResult struct {
	Filename  string
	Path      string
	Overwrote bool
}

// Key derives the repository key for a skill name on a domain.
func (s *Store) Key(domain, name string) string {
	return sanitizeDomain(domain) + keySeparator + s.sanitizeName(name) + fileExtension
}

// Save writes content under the key derived from domain and name. An existing
// skill with the same key is replaced.
func (s *Store) Save(ctx context.Context, name, content, domain string) (SaveResult, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return SaveResult{}, errors.Wrap(err, "failed to create skills directory")
	}

	filename := s.Key(domain, name)
	path := filepath.Join(s.dir, filename)

	_, statErr := os.Stat(path)
	overwrote := statErr == nil
	if overwrote {
		logger.G(ctx).WithField("filename", filename).Warn("overwriting existing skill with the same key")
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return SaveResult{}, errors.Wrapf(err, "failed to write skill %s", filename)
	}

	logger.G(ctx).WithField("filename", filename).Info("skill saved")
	return SaveResult{Filename: filename, Path: path, Overwrote: overwrote}, nil
}

// LoadForDomain returns every skill stored for domain.
func (s *Store) LoadForDomain(domain string) ([]Entry, error) {
	prefix := sanitizeDomain(domain) + keySeparator
	return s.load(func(name string) bool { return strings.HasPrefix(name, prefix) })
}

// LoadAll returns every stored skill ordered by filename.
func (s *Store) LoadAll() ([]Entry, error) {
	return s.load(func(string) bool { return true })
}

// Get loads a single skill by filename.
func (s *Store) Get(filename string) (Entry, error) {
	if err := validateKey(filename); err != nil {
		return Entry{}, err
	}
	path := filepath.Join(s.dir, filename)
	content, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "failed to read skill %s", filename)
	}
	return newEntry(filename, path, string(content)), nil
}

// Delete removes the skill stored under filename.
func (s *Store) Delete(filename string) error {
	if err := validateKey(filename); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, filename)); err != nil {
		return errors.Wrapf(err, "failed to delete skill %s", filename)
	}
	return nil
}

func (s *Store) load(match func(filename string) bool) ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, errors.Wrap(err, "failed to read skills directory")
	}

	entries := []Entry{}
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, fileExtension) || !match(name) {
			continue
		}
		path := filepath.Join(s.dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read skill %s", name)
		}
		entries = append(entries, newEntry(name, path, string(content)))
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Filename < entries[j].Filename })
	return entries, nil
}

func newEntry(filename, path, content string) Entry {
	name := ParseDocument(content).Name
	if name == "" {
		name = unnamedSkill
	}
	return Entry{Name: name, Filename: filename, Path: path, Content: content}
}

func validateKey(filename string) error {
	if filename == "" || filename != filepath.Base(filename) || strings.ContainsAny(filename, `/\`) ||
		filename == "." || filename == ".." || !strings.HasSuffix(filename, fileExtension) {
		return errors.Wrapf(ErrInvalidKey, "%q", filename)
	}
	return nil
}

func sanitizeDomain(domain string) string {
	d := domainDisallowed.ReplaceAllString(strings.ToLower(strings.TrimSpace(domain)), "")
	if d == "" {
		return defaultDomain
	}
	return d
}

func (s *Store) sanitizeName(name string) string {
	n := nameDisallowed.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	n = strings.Trim(n, "_")
	if n == "" {
		return fmt.Sprintf("skill_%d", s.now().UnixMilli())
	}
	return n
}

// SiteFromKey returns the domain portion of a repository key.
func SiteFromKey(filename string) string {
	if i := strings.Index(filename, keySeparator); i > 0 {
		return filename[:i]
	}
	return defaultDomain
}
