package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Format identifies a catalog file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ErrUnsupportedFormat is returned for files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported manifest format")

// document is the on-disk catalog layout shared by every format. Games
// stay undecoded so one malformed entry cannot take the whole file down.
type document[T any] struct {
	Version int `json:"version,omitempty" yaml:"version" toml:"version"`
	Games   []T `json:"games" yaml:"games" toml:"games"`
}

// slot is one element of a catalog file: a decoded entry, or the reason it
// could not be decoded.
type slot struct {
	entry Entry
	err   error
}

type parsedFile struct {
	path  string
	slots []slot
	err   error
}

// FormatOf picks the decoder from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Parse decodes a catalog document. It does not validate entries. Elements
// that cannot be decoded are returned as issues and the rest still load; the
// error is non-nil only when the document itself is unreadable.
func Parse(data []byte, format Format) ([]Entry, []Issue, error) {
	slots, err := parseSlots(data, format)
	if err != nil {
		return nil, nil, err
	}
	var (
		entries []Entry
		issues  []Issue
	)
	for i, s := range slots {
		if s.err != nil {
			issues = append(issues, Issue{Source: string(format), Index: i, Err: s.err})
			continue
		}
		entries = append(entries, s.entry)
	}
	return entries, issues, nil
}

func parseSlots(data []byte, format Format) ([]slot, error) {
	var (
		slots []slot
		err   error
	)
	switch format {
	case FormatJSON:
		slots, err = parseJSON(data)
	case FormatYAML:
		slots, err = parseYAML(data)
	case FormatTOML:
		slots, err = parseTOML(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s manifest: %w", format, err)
	}
	return slots, nil
}

func parseJSON(data []byte) ([]slot, error) {
	var doc document[json.RawMessage]
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	slots := make([]slot, len(doc.Games))
	for i, raw := range doc.Games {
		slots[i].err = decodeElement(sonic.Unmarshal(raw, &slots[i].entry))
	}
	return slots, nil
}

func parseYAML(data []byte) ([]slot, error) {
	var doc document[any]
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	slots := make([]slot, len(doc.Games))
	for i, raw := range doc.Games {
		b, err := yaml.Marshal(raw)
		if err == nil {
			err = yaml.Unmarshal(b, &slots[i].entry)
		}
		slots[i].err = decodeElement(err)
	}
	return slots, nil
}

func parseTOML(data []byte) ([]slot, error) {
	var doc document[any]
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	slots := make([]slot, len(doc.Games))
	for i, raw := range doc.Games {
		var err error
		table, ok := raw.(map[string]any)
		if !ok {
			err = fmt.Errorf("expected a table, got %T", raw)
		} else {
			var b []byte
			if b, err = toml.Marshal(table); err == nil {
				err = toml.Unmarshal(b, &slots[i].entry)
			}
		}
		slots[i].err = decodeElement(err)
	}
	return slots, nil
}

func decodeElement(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
}

// LoadPath reads a catalog file, or every catalog file beneath a directory.
// The returned error is non-nil only when nothing could be read at all;
// per-entry and per-file problems are reported through Catalog.Issues.
func LoadPath(path string) (*Catalog, error) {
	return loadPath(newValidator(), path)
}

func loadPath(v *validator.Validate, path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat manifest: %w", err)
	}
	if !info.IsDir() {
		slots, err := readFile(path)
		if err != nil {
			return nil, err
		}
		return build(v, path, slots), nil
	}

	files, err := walkDir(path)
	if err != nil {
		return nil, err
	}
	parts := make([]*parsedFile, 0, len(files))
	for _, f := range files {
		slots, err := readFile(f)
		parts = append(parts, &parsedFile{path: f, slots: slots, err: err})
	}
	return merge(v, path, parts), nil
}

func readFile(path string) ([]slot, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	slots, err := parseSlots(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return slots, nil
}

// walkDir lists catalog files beneath root in lexical order. fastwalk
// invokes the callback from several goroutines.
func walkDir(root string) ([]string, error) {
	var (
		mu    sync.Mutex
		files []string
	)
	conf := fastwalk.Config{Follow: false}

	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ferr := FormatOf(p); ferr != nil {
			return nil
		}
		mu.Lock()
		files = append(files, p)
		mu.Unlock()
		return nil
	})
	if err != nil && !errors.Is(err, fs.SkipAll) {
		return nil, fmt.Errorf("failed to walk manifest dir: %w", err)
	}

	sort.Strings(files)
	return files, nil
}
