package retrieval

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const cacheExt = ".jsonl"

// FileCache keeps fetched pages as newline-delimited JSON, one file per cache
// key. A file that exists is a hit; there is no expiry.
type FileCache struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFileCache(dir string) *FileCache {
	return &FileCache{dir: dir, locks: make(map[string]*sync.Mutex)}
}

// FileName is the file a key is stored under. Keys that already end in
// .jsonl are used as given.
func FileName(key string) string {
	name := strings.NewReplacer("/", "_", `\`, "_").Replace(strings.TrimPrefix(key, "/"))
	if strings.HasSuffix(name, cacheExt) {
		return name
	}
	return name + cacheExt
}

// Path returns the full path of the file for key.
func (c *FileCache) Path(key string) string {
	return filepath.Join(c.dir, FileName(key))
}

// Load returns the cached pages for key. ok is false when nothing is cached.
func (c *FileCache) Load(key string) (pages []json.RawMessage, ok bool, err error) {
	lock := c.lock(key)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(c.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("opening cache file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, false, fmt.Errorf("cache file %s holds invalid JSON", c.Path(key))
		}
		pages = append(pages, json.RawMessage(bytes.Clone(line)))
	}
	if err := scanner.Err(); err != nil {
		return nil, false, fmt.Errorf("reading cache file: %w", err)
	}
	return pages, true, nil
}

// Save writes pages for key, one per line. The file is written under a
// temporary name and renamed into place, and writers of the same key are
// serialized.
func (c *FileCache) Save(key string, pages []json.RawMessage) error {
	lock := c.lock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, FileName(key)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, page := range pages {
		var buf bytes.Buffer
		if err := json.Compact(&buf, page); err != nil {
			tmp.Close()
			return fmt.Errorf("encoding page: %w", err)
		}
		buf.WriteByte('\n')
		if _, err := w.Write(buf.Bytes()); err != nil {
			tmp.Close()
			return fmt.Errorf("writing cache file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.Path(key)); err != nil {
		return fmt.Errorf("moving cache file into place: %w", err)
	}
	return nil
}

func (c *FileCache) lock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}
