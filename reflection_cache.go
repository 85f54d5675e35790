package ioc

import (
	"reflect"
	"sync"
)

// reflectionCache caches reflection metadata to avoid repeated type analysis
// across discovery passes and Inject calls.
type reflectionCache struct {
	mu sync.RWMutex

	// Struct field cache for field injection
	fields map[reflect.Type][]fieldInfo

	// Implements cache keyed by (concrete, capability)
	implements map[typePair]bool
}

type typePair struct {
	concrete   reflect.Type
	capability reflect.Type
}

// fieldInfo stores metadata about a struct field for field injection.
type fieldInfo struct {
	index        int
	name         string
	typ          reflect.Type
	tag          string
	isInjectable bool
}

// newReflectionCache creates a new reflection cache.
func newReflectionCache() *reflectionCache {
	return &reflectionCache{
		fields:     make(map[reflect.Type][]fieldInfo),
		implements: make(map[typePair]bool),
	}
}

// getFieldInfo retrieves or computes struct field information.
func (rc *reflectionCache) getFieldInfo(typ reflect.Type) []fieldInfo {
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}

	// Fast path: check cache with read lock
	rc.mu.RLock()
	fields, exists := rc.fields[typ]
	rc.mu.RUnlock()

	if exists {
		return fields
	}

	// Slow path: compute and cache with write lock
	rc.mu.Lock()
	defer rc.mu.Unlock()

	// Double-check after acquiring write lock
	fields, exists = rc.fields[typ]
	if exists {
		return fields
	}

	if typ.Kind() != reflect.Struct {
		rc.fields[typ] = nil
		return nil
	}

	numFields := typ.NumField()
	fields = make([]fieldInfo, 0, numFields)

	for i := 0; i < numFields; i++ {
		field := typ.Field(i)

		// Injectable means exported and tagged
		tag, hasInjectTag := field.Tag.Lookup("inject")
		fields = append(fields, fieldInfo{
			index:        i,
			name:         field.Name,
			typ:          field.Type,
			tag:          tag,
			isInjectable: field.IsExported() && hasInjectTag,
		})
	}

	rc.fields[typ] = fields
	return fields
}

// implementsCapability reports whether concrete implements capability.
func (rc *reflectionCache) implementsCapability(concrete, capability reflect.Type) bool {
	if concrete == nil || capability == nil || capability.Kind() != reflect.Interface {
		return false
	}
	key := typePair{concrete: concrete, capability: capability}

	rc.mu.RLock()
	ok, exists := rc.implements[key]
	rc.mu.RUnlock()

	if exists {
		return ok
	}

	ok = concrete.Implements(capability)

	rc.mu.Lock()
	rc.implements[key] = ok
	rc.mu.Unlock()

	return ok
}
