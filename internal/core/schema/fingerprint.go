package schema

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// fingerprint hashes the wire-relevant layout of a descriptor: names, Go
// types, ranges, discriminants and fallback edges. Defaults and downgrade
// functions are not part of it.
func fingerprint(d *TypeDescriptor) uint64 {
	h := xxhash.New()
	w := func(parts ...string) {
		for _, p := range parts {
			_, _ = h.WriteString(p)
			_, _ = h.WriteString("\x00")
		}
	}
	w(d.kind.String(), d.name, d.rng.String())
	for _, f := range d.fields {
		w("f", f.Name, f.Type.String(), f.Range.String())
	}
	for _, s := range d.variants {
		payload := ""
		if s.Payload != nil {
			payload = s.Payload.String()
		}
		fallback := "-"
		if s.HasFallback {
			fallback = strconv.FormatUint(uint64(s.Fallback), 10)
		}
		w("v", s.Name, strconv.FormatUint(uint64(s.Discriminant), 10), s.Range.String(), payload, fallback)
	}
	return h.Sum64()
}
