package gsd

import (
	"os"

	"github.com/fxamacker/cbor/v2"
)

// cacheEntry is the on-disk cbor record: the source file's mtime+size
// (the cache key) alongside the parsed Descriptor.
type cacheEntry struct {
	ModTime int64
	Size    int64
	Desc    Descriptor
}

// Cache wraps a Consumer with an on-disk cbor cache so that repeated
// master start-ups against an unchanged GSD file don't re-run the
// external tokenizer/interpreter. Grounded on seedhammer-seedhammer's use
// of github.com/fxamacker/cbor/v2 for compact binary state encoding.
type Cache struct {
	Inner Consumer
}

func cachePath(path string) string { return path + ".cache.cbor" }

func (c *Cache) Parse(path string) (*Descriptor, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if cached, ok := c.readCache(path, fi.ModTime().UnixNano(), fi.Size()); ok {
		return cached, nil
	}

	desc, err := c.Inner.Parse(path)
	if err != nil {
		return nil, err
	}
	c.writeCache(path, fi.ModTime().UnixNano(), fi.Size(), desc)
	return desc, nil
}

func (c *Cache) readCache(path string, modTime, size int64) (*Descriptor, bool) {
	data, err := os.ReadFile(cachePath(path))
	if err != nil {
		return nil, false
	}
	var entry cacheEntry
	if err := cbor.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	if entry.ModTime != modTime || entry.Size != size {
		return nil, false
	}
	desc := entry.Desc
	return &desc, true
}

func (c *Cache) writeCache(path string, modTime, size int64, desc *Descriptor) {
	entry := cacheEntry{ModTime: modTime, Size: size, Desc: *desc}
	data, err := cbor.Marshal(entry)
	if err != nil {
		return
	}
	_ = os.WriteFile(cachePath(path), data, 0o644)
}

var _ Consumer = (*Cache)(nil)
