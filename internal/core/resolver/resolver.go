// Package resolver decides which fields and variants of a descriptor take
// part in (de)serialization at a given version. Every function here is a
// pure function of its arguments.
package resolver

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/zeusync/versionize/internal/core/schema"
	"github.com/zeusync/versionize/pkg/version"
)

// ResolveFields returns, in declaration order, the fields active at target.
func ResolveFields(desc *schema.TypeDescriptor, target version.Version) []schema.FieldSpec {
	all := desc.Fields()
	active := make([]schema.FieldSpec, 0, len(all))
	for _, f := range all {
		if f.ActiveAt(target) {
			active = append(active, f)
		}
	}
	return active
}

// ResolveVariant maps a discriminant read from the wire to the one that
// should be constructed at target. Fallbacks are validated at build time,
// so at most one hop is taken.
func ResolveVariant(desc *schema.TypeDescriptor, target version.Version, wire uint32) (uint32, error) {
	s, ok := desc.Variant(wire)
	if !ok {
		return 0, schema.NewError(schema.ErrUnsupportedVariant, desc.Name(), "").
			WithContext("discriminant", wire)
	}
	if s.ActiveAt(target) {
		return wire, nil
	}
	if !s.HasFallback {
		return 0, schema.NewError(schema.ErrUnsupportedVariant, desc.Name(), "no fallback").
			WithPath(s.Name).
			WithContext("target", target)
	}
	fb, ok := desc.Variant(s.Fallback)
	if !ok || !fb.ActiveAt(target) {
		return 0, schema.NewError(schema.ErrUnsupportedVariant, desc.Name(), "fallback not valid at target").
			WithPath(s.Name).
			WithContext("target", target)
	}
	return fb.Discriminant, nil
}

// ResolveVariantForEncode returns the discriminant to write for a value of
// variant disc at target. A variant outside its range is only substituted
// when it opted in with schema.SubstituteOnEncode.
func ResolveVariantForEncode(desc *schema.TypeDescriptor, target version.Version, disc uint32) (uint32, error) {
	s, ok := desc.Variant(disc)
	if !ok {
		return 0, schema.NewError(schema.ErrUnsupportedVariant, desc.Name(), "").
			WithContext("discriminant", disc)
	}
	if s.ActiveAt(target) {
		return disc, nil
	}
	if s.HasFallback && s.EncodeFallback {
		if fb, ok := desc.Variant(s.Fallback); ok && fb.ActiveAt(target) {
			return fb.Discriminant, nil
		}
	}
	return 0, schema.NewError(schema.ErrVariantNotYetSupported, desc.Name(), "").
		WithPath(s.Name).
		WithContext("target", target).
		WithContext("range", s.Range.String())
}

type cacheKey struct {
	desc   *schema.TypeDescriptor
	target version.Version
}

// Cache memoizes ResolveFields for callers that encode the same types at
// the same versions repeatedly. It is safe for concurrent use.
type Cache struct {
	entries *xsync.MapOf[cacheKey, []schema.FieldSpec]
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: xsync.NewMapOf[cacheKey, []schema.FieldSpec]()}
}

// Fields is ResolveFields backed by the cache. The returned slice is
// shared and must not be modified.
func (c *Cache) Fields(desc *schema.TypeDescriptor, target version.Version) []schema.FieldSpec {
	fields, _ := c.entries.LoadOrCompute(cacheKey{desc, target}, func() []schema.FieldSpec {
		return ResolveFields(desc, target)
	})
	return fields
}

// Len returns the number of memoized (type, version) pairs.
func (c *Cache) Len() int { return c.entries.Size() }

// Reset drops every entry.
func (c *Cache) Reset() { c.entries.Clear() }

// Resolver resolves fields either directly or through a Cache.
type Resolver struct {
	cache *Cache
}

// New returns a Resolver. A nil cache disables memoization.
func New(cache *Cache) Resolver {
	return Resolver{cache: cache}
}

// Fields returns the fields of desc active at target.
func (r Resolver) Fields(desc *schema.TypeDescriptor, target version.Version) []schema.FieldSpec {
	if r.cache == nil {
		return ResolveFields(desc, target)
	}
	return r.cache.Fields(desc, target)
}

// Variant is ResolveVariant.
func (r Resolver) Variant(desc *schema.TypeDescriptor, target version.Version, wire uint32) (uint32, error) {
	return ResolveVariant(desc, target, wire)
}

// VariantForEncode is ResolveVariantForEncode.
func (r Resolver) VariantForEncode(desc *schema.TypeDescriptor, target version.Version, disc uint32) (uint32, error) {
	return ResolveVariantForEncode(desc, target, disc)
}
