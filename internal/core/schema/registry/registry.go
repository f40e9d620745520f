package registry

import (
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/zeusync/versionize/internal/core/observability/log"
	"github.com/zeusync/versionize/internal/core/schema"
)

// SchemaRegistry resolves versioned types by name and by Go type.
type SchemaRegistry interface {
	Register(desc *schema.TypeDescriptor) error
	Lookup(name string) (*schema.TypeDescriptor, error)
	LookupType(t reflect.Type) (*schema.TypeDescriptor, bool)
	EnumsOf(payload reflect.Type) []*schema.TypeDescriptor
	Names() []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used to report registrations.
func WithLogger(l log.Log) Option {
	return func(r *Registry) { r.logger = l }
}

// Registry holds the descriptors known to an engine. Registration happens
// during setup; once Freeze is called the registry is read-only and lookups
// take no locks.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]*schema.TypeDescriptor
	byType   map[reflect.Type]*schema.TypeDescriptor
	payloads map[reflect.Type][]*schema.TypeDescriptor
	frozen   atomic.Bool
	logger   log.Log
}

var _ SchemaRegistry = (*Registry)(nil)

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		byName:   make(map[string]*schema.TypeDescriptor),
		byType:   make(map[reflect.Type]*schema.TypeDescriptor),
		payloads: make(map[reflect.Type][]*schema.TypeDescriptor),
		logger:   log.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a descriptor. Names and Go types must be unique.
func (r *Registry) Register(desc *schema.TypeDescriptor) error {
	if desc == nil {
		return schema.NewError(schema.ErrInvalidDescriptor, "", "nil descriptor")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		r.logger.Warn("Registration after freeze",
			log.String("type", desc.Name()),
		)
		return schema.NewError(schema.ErrRegistryFrozen, desc.Name(), "")
	}
	if _, exists := r.byName[desc.Name()]; exists {
		return schema.NewError(schema.ErrAlreadyRegistered, desc.Name(), "name in use")
	}
	if other, exists := r.byType[desc.GoType()]; exists {
		return schema.NewError(schema.ErrAlreadyRegistered, desc.Name(),
			"go type "+desc.GoType().String()+" already registered as "+other.Name())
	}

	r.byName[desc.Name()] = desc
	r.byType[desc.GoType()] = desc
	if desc.Kind() == schema.KindEnum && !desc.IsIntegerEnum() {
		for _, s := range desc.Variants() {
			if s.Payload != nil {
				r.payloads[s.Payload] = append(r.payloads[s.Payload], desc)
			}
		}
	}

	r.logger.Debug("Type registered",
		log.String("type", desc.Name()),
		log.Stringer("kind", desc.Kind()),
		log.Stringer("range", desc.Range()),
		log.Uint16("latest", uint16(desc.Latest())),
		log.Uint64("fingerprint", desc.Fingerprint()),
	)
	return nil
}

// MustRegister registers every descriptor and panics on the first error.
func (r *Registry) MustRegister(descs ...*schema.TypeDescriptor) *Registry {
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (*schema.TypeDescriptor, error) {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	desc, ok := r.byName[name]
	if !ok {
		return nil, schema.NewError(schema.ErrNotRegistered, name, "")
	}
	return desc, nil
}

// LookupType returns the descriptor registered for t, if any.
func (r *Registry) LookupType(t reflect.Type) (*schema.TypeDescriptor, bool) {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	desc, ok := r.byType[t]
	return desc, ok
}

// EnumsOf returns the interface enums with a variant carrying payload.
func (r *Registry) EnumsOf(payload reflect.Type) []*schema.TypeDescriptor {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	return r.payloads[payload]
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	return len(r.byName)
}

// Freeze makes the registry read-only. It is idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Swap(true) {
		return
	}
	r.logger.Debug("Registry frozen", log.Int("types", len(r.byName)))
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool { return r.frozen.Load() }
