// Package snapshot persists versioned values in a self-describing
// envelope: a header naming the type, codec and version the body was
// written at, the body itself, and an xxhash64 or BLAKE3 trailer.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"hash"
	"io"
	"reflect"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/zeusync/versionize/internal/core/codec"
	"github.com/zeusync/versionize/internal/core/observability/log"
	"github.com/zeusync/versionize/internal/core/schema"
	"github.com/zeusync/versionize/pkg/encoding"
	"github.com/zeusync/versionize/pkg/generic"
	"github.com/zeusync/versionize/pkg/version"
)

// DefaultMaxBodySize bounds the body Load accepts.
const DefaultMaxBodySize = 256 << 20

const maxPooledBuffer = 1 << 20

var buffers = generic.NewPool(
	func() *bytes.Buffer { return new(bytes.Buffer) },
	generic.WithKeep(func(b *bytes.Buffer) bool { return b.Cap() <= maxPooledBuffer }),
	generic.WithReset(func(b *bytes.Buffer) { b.Reset() }),
)

// Option configures a Codec.
type Option func(*Codec)

// WithFormat selects the byte codec of the body.
func WithFormat(f encoding.Format) Option {
	return func(c *Codec) { c.format = f }
}

// WithCompression selects the body compression.
func WithCompression(comp Compression) Option {
	return func(c *Codec) { c.compression = comp }
}

// WithChecksum enables or disables the checksum trailer on Save.
func WithChecksum(enabled bool) Option {
	return func(c *Codec) { c.checksum = enabled }
}

// WithDigest selects the trailer algorithm used when checksums are on.
func WithDigest(d Digest) Option {
	return func(c *Codec) { c.digest = d }
}

// WithVersion makes Save write, and Load produce, every type at v.
func WithVersion(v version.Version) Option {
	return func(c *Codec) {
		c.fixed = v
		c.hasFixed = true
	}
}

// WithVersionMap makes Save write at an umbrella version of m and Load
// resolve umbrella snapshots through m.
func WithVersionMap(m *version.Map, umbrella version.Version) Option {
	return func(c *Codec) {
		c.versions = m
		c.umbrella = umbrella
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Log) Option {
	return func(c *Codec) { c.logger = l }
}

// WithMetrics registers the snapshot counters in set.
func WithMetrics(set *metrics.Set) Option {
	return func(c *Codec) { c.metrics = set }
}

// WithMaxBodySize bounds the body Load accepts.
func WithMaxBodySize(n uint64) Option {
	return func(c *Codec) { c.maxBody = n }
}

// Codec saves and loads snapshots of registered types.
type Codec struct {
	engine      *codec.Engine
	format      encoding.Format
	compression Compression
	checksum    bool
	digest      Digest

	fixed    version.Version
	hasFixed bool
	versions *version.Map
	umbrella version.Version

	maxBody uint64
	logger  log.Log
	metrics *metrics.Set
}

// New creates a Codec. Without WithVersion or WithVersionMap every type is
// saved and loaded at its descriptor's Latest version.
func New(engine *codec.Engine, opts ...Option) *Codec {
	c := &Codec{
		engine:   engine,
		format:   encoding.FormatBinary,
		checksum: true,
		maxBody:  DefaultMaxBodySize,
		logger:   log.Nop(),
		metrics:  metrics.NewSet(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Metrics returns the set holding the snapshot counters.
func (c *Codec) Metrics() *metrics.Set { return c.metrics }

// Save writes value as one snapshot.
func (c *Codec) Save(w io.Writer, value any) (Header, error) {
	desc, err := c.describe(reflect.TypeOf(value))
	if err != nil {
		return Header{}, err
	}
	h, err := c.save(w, desc, value)
	if err != nil {
		c.counter("failed", "save").Inc()
		c.logger.Debug("Snapshot save failed", log.String("type", desc.Name()), log.Error(err))
		return h, err
	}
	c.counter("saved", desc.Name()).Inc()
	c.logger.Debug("Snapshot saved",
		log.String("type", h.Type),
		log.Stringer("mode", h.Mode),
		log.Uint16("version", uint16(h.Version)),
		log.Uint64("bytes", h.BodySize),
	)
	return h, nil
}

func (c *Codec) save(w io.Writer, desc *schema.TypeDescriptor, value any) (Header, error) {
	h := Header{
		FormatVersion: formatVersion,
		Codec:         c.format,
		Compression:   c.compression,
		Checksum:      c.checksum,
		Digest:        c.digest,
		Type:          desc.Name(),
		ID:            uuid.New(),
		Fingerprint:   desc.Fingerprint(),
	}
	var target version.Selector
	switch {
	case c.versions != nil:
		sel, err := c.versions.At(c.umbrella)
		if err != nil {
			return h, err
		}
		h.Mode, h.Version, target = ModeUmbrella, c.umbrella, sel
	case c.hasFixed:
		h.Mode, h.Version, target = ModeFixed, c.fixed, version.Fixed(c.fixed)
	default:
		h.Mode, h.Version, target = ModeFixed, desc.Latest(), version.Fixed(desc.Latest())
	}

	raw := buffers.Get()
	defer buffers.Put(raw)
	bw, err := encoding.NewWriter(c.format, raw)
	if err != nil {
		return h, err
	}
	if err = c.engine.EncodeSelected(bw, value, target); err != nil {
		return h, err
	}
	body, err := compress(c.compression, raw.Bytes())
	if err != nil {
		return h, err
	}
	h.RawSize, h.BodySize = uint64(raw.Len()), uint64(len(body))

	head := buffers.Get()
	defer buffers.Put(head)
	if err = h.write(encoding.NewBinaryWriter(head)); err != nil {
		return h, err
	}

	if _, err = w.Write(head.Bytes()); err != nil {
		return h, fmt.Errorf("writing snapshot header: %w", err)
	}
	if _, err = w.Write(body); err != nil {
		return h, fmt.Errorf("writing snapshot body: %w", err)
	}
	if h.Checksum {
		d, err := newDigest(h.Digest)
		if err != nil {
			return h, err
		}
		_, _ = d.Write(head.Bytes())
		_, _ = d.Write(body)
		if _, err = w.Write(d.Sum(nil)); err != nil {
			return h, fmt.Errorf("writing snapshot checksum: %w", err)
		}
	}
	return h, nil
}

// Load reads one snapshot into the value ptr points to. The body is decoded
// from the version recorded in the header to the version the Codec is
// configured for.
func (c *Codec) Load(r io.Reader, ptr any) (Header, error) {
	h, err := c.load(r, ptr)
	if err != nil {
		c.counter("failed", "load").Inc()
		c.logger.Debug("Snapshot load failed", log.String("type", h.Type), log.Error(err))
		return h, err
	}
	c.counter("loaded", h.Type).Inc()
	c.logger.Debug("Snapshot loaded",
		log.String("type", h.Type),
		log.Stringer("mode", h.Mode),
		log.Uint16("version", uint16(h.Version)),
	)
	return h, nil
}

func (c *Codec) load(r io.Reader, ptr any) (Header, error) {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return Header{}, schema.NewError(schema.ErrInvalidValue, "", "load target must be a non-nil pointer")
	}
	desc, err := c.describe(rv.Type().Elem())
	if err != nil {
		return Header{}, err
	}

	h, body, err := readEnvelope(r, c.maxBody)
	if err != nil {
		return h, err
	}
	if h.Type != desc.Name() {
		return h, fmt.Errorf("%w: snapshot has %q, want %q", ErrTypeMismatch, h.Type, desc.Name())
	}
	wire, target, err := c.selectors(h, desc)
	if err != nil {
		return h, err
	}

	br, err := encoding.NewReader(h.Codec, bytes.NewReader(body))
	if err != nil {
		return h, err
	}
	if err = c.engine.DecodeSelected(br, ptr, wire, target); err != nil {
		return h, err
	}
	if _, err = br.ReadUint8(); !errors.Is(err, io.EOF) {
		return h, ErrTrailingData
	}
	return h, nil
}

// selectors returns the versions the body was written at and the versions
// to decode it to.
func (c *Codec) selectors(h Header, desc *schema.TypeDescriptor) (wire, target version.Selector, err error) {
	switch h.Mode {
	case ModeUmbrella:
		if c.versions == nil {
			return nil, nil, ErrNoVersionMap
		}
		if !c.versions.Has(h.Version) {
			return nil, nil, schema.NewError(schema.ErrVersionTooNew, h.Type, "unknown umbrella version").
				WithContext("umbrella", h.Version).
				WithContext("latest", c.versions.Latest())
		}
		if wire, err = c.versions.At(h.Version); err != nil {
			return nil, nil, err
		}
	default:
		wire = version.Fixed(h.Version)
	}

	switch {
	case c.versions != nil:
		target, err = c.versions.At(c.umbrella)
	case c.hasFixed:
		target = version.Fixed(c.fixed)
	default:
		target = version.Fixed(desc.Latest())
	}
	return wire, target, err
}

// Inspect reads a snapshot envelope without decoding the body and
// verifies its checksum. It needs no registered types.
func Inspect(r io.Reader) (Header, error) {
	h, _, err := readEnvelope(r, DefaultMaxBodySize)
	return h, err
}

func readEnvelope(r io.Reader, maxBody uint64) (Header, []byte, error) {
	var (
		h    Header
		head bytes.Buffer
	)
	if err := h.read(encoding.NewBinaryReader(io.TeeReader(r, &head))); err != nil {
		return h, nil, fmt.Errorf("reading snapshot header: %w", err)
	}
	if h.BodySize > maxBody || h.RawSize > maxBody {
		return h, nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, max(h.BodySize, h.RawSize))
	}

	body := make([]byte, h.BodySize)
	if _, err := io.ReadFull(r, body); err != nil {
		return h, nil, fmt.Errorf("reading snapshot body: %w", err)
	}

	if h.Checksum {
		d, err := newDigest(h.Digest)
		if err != nil {
			return h, nil, err
		}
		_, _ = d.Write(head.Bytes())
		_, _ = d.Write(body)
		stored := make([]byte, h.Digest.size())
		if _, err = io.ReadFull(r, stored); err != nil {
			return h, nil, fmt.Errorf("reading snapshot checksum: %w", err)
		}
		if computed := d.Sum(nil); !bytes.Equal(stored, computed) {
			return h, nil, fmt.Errorf("%w: stored %x, computed %x", ErrChecksumMismatch, stored, computed)
		}
	}

	raw, err := decompress(h.Compression, body, int(h.RawSize))
	if err != nil {
		return h, nil, err
	}
	return h, raw, nil
}

func newDigest(d Digest) (hash.Hash, error) {
	switch d {
	case DigestXXH64:
		return xxhash.New(), nil
	case DigestBlake3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDigest, d)
	}
}

func (c *Codec) describe(t reflect.Type) (*schema.TypeDescriptor, error) {
	if t == nil {
		return nil, schema.NewError(schema.ErrInvalidValue, "", "cannot snapshot nil")
	}
	if desc, ok := c.engine.Registry().LookupType(t); ok {
		return desc, nil
	}
	if t.Kind() == reflect.Pointer {
		if desc, ok := c.engine.Registry().LookupType(t.Elem()); ok {
			return desc, nil
		}
	}
	return nil, schema.NewError(schema.ErrNotRegistered, t.String(), "")
}

func (c *Codec) counter(event, label string) *metrics.Counter {
	key := "type"
	if event == "failed" {
		key = "op"
	}
	return c.metrics.GetOrCreateCounter(fmt.Sprintf(`versionize_snapshot_%s_total{%s=%q}`, event, key, label))
}
