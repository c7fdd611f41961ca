package xtpl

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CacheConfig contains configuration options for the template cache
type CacheConfig struct {
	// MaxSize is the maximum number of templates to cache. 0 disables caching.
	MaxSize int
	// TTL is the time-to-live for cached templates. 0 means no expiration.
	TTL time.Duration
}

// TemplateCache keeps compiled templates by key with LRU eviction and an
// optional TTL. Concurrent Compile calls for the same key compile once.
type TemplateCache struct {
	mu     sync.Mutex
	cache  map[string]*cacheEntry
	lru    *list.List
	config CacheConfig
	group  singleflight.Group
}

type cacheEntry struct {
	key      string
	template *Template
	expiry   time.Time
	element  *list.Element
}

// NewTemplateCache creates a template cache sized from the global configuration
func NewTemplateCache() *TemplateCache {
	config := GetGlobalConfig()
	return NewTemplateCacheWithConfig(CacheConfig{
		MaxSize: config.CacheMaxSize,
		TTL:     time.Duration(config.CacheTTL),
	})
}

// NewTemplateCacheWithConfig creates a new template cache with the given configuration
func NewTemplateCacheWithConfig(config CacheConfig) *TemplateCache {
	return &TemplateCache{
		cache:  make(map[string]*cacheEntry),
		lru:    list.New(),
		config: config,
	}
}

// Compile returns the cached template for key, compiling src on a miss
func (tc *TemplateCache) Compile(key, src string, opts ...Option) (*Template, error) {
	if tc.config.MaxSize == 0 {
		return Compile(src, opts...)
	}
	if tpl, ok := tc.Get(key); ok {
		return tpl, nil
	}

	v, err, shared := tc.group.Do(key, func() (interface{}, error) {
		if tpl, ok := tc.Get(key); ok {
			return tpl, nil
		}
		tpl, err := Compile(src, opts...)
		if err != nil {
			return nil, err
		}
		tc.Set(key, tpl)
		return tpl, nil
	})
	if err != nil {
		return nil, err
	}
	if shared && debugEnabled(GetLogger()) {
		GetLogger().Debug("shared template compilation")
	}
	return v.(*Template), nil
}

// Get retrieves a template from cache without compiling a new one
func (tc *TemplateCache) Get(key string) (*Template, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	entry, exists := tc.cache[key]
	if !exists {
		return nil, false
	}
	if tc.config.TTL > 0 && time.Now().After(entry.expiry) {
		tc.removeLocked(entry)
		return nil, false
	}
	tc.lru.MoveToFront(entry.element)
	return entry.template, true
}

// Set adds a template to the cache
func (tc *TemplateCache) Set(key string, template *Template) {
	if tc.config.MaxSize == 0 {
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	expiry := time.Time{}
	if tc.config.TTL > 0 {
		expiry = time.Now().Add(tc.config.TTL)
	}

	if existing, exists := tc.cache[key]; exists {
		existing.template = template
		existing.expiry = expiry
		tc.lru.MoveToFront(existing.element)
		return
	}

	if tc.lru.Len() >= tc.config.MaxSize {
		if oldest := tc.lru.Back(); oldest != nil {
			tc.removeLocked(oldest.Value.(*cacheEntry))
		}
	}

	entry := &cacheEntry{
		key:      key,
		template: template,
		expiry:   expiry,
	}
	entry.element = tc.lru.PushFront(entry)
	tc.cache[key] = entry
}

// Remove removes a template from the cache
func (tc *TemplateCache) Remove(key string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if entry, exists := tc.cache[key]; exists {
		tc.removeLocked(entry)
	}
}

func (tc *TemplateCache) removeLocked(entry *cacheEntry) {
	delete(tc.cache, entry.key)
	tc.lru.Remove(entry.element)
}

// Clear removes all templates from the cache
func (tc *TemplateCache) Clear() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.cache = make(map[string]*cacheEntry)
	tc.lru = list.New()
}

// Size returns the current number of cached templates
func (tc *TemplateCache) Size() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.cache)
}

// Close clears the cache
func (tc *TemplateCache) Close() error {
	tc.Clear()
	return nil
}

var (
	defaultCache     *TemplateCache
	defaultCacheOnce sync.Once
)

func getDefaultCache() *TemplateCache {
	defaultCacheOnce.Do(func() {
		defaultCache = NewTemplateCache()
	})
	return defaultCache
}

// RenderString compiles src through the process-wide cache, keyed by the
// source text, and renders it with data.
func RenderString(src string, data interface{}) (string, error) {
	tpl, err := getDefaultCache().Compile(src, src)
	if err != nil {
		return "", err
	}
	return tpl.Render(data)
}
