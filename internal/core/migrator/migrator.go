package migrator

import (
	"bytes"
	"reflect"

	"github.com/zeusync/versionize/internal/core/codec"
	"github.com/zeusync/versionize/internal/core/schema"
	"github.com/zeusync/versionize/pkg/encoding"
	"github.com/zeusync/versionize/pkg/version"
)

// Risk classifies what a migration does to the data.
type Risk string

const (
	RiskNone    Risk = "none"
	RiskLow     Risk = "low"
	RiskLossy   Risk = "lossy"
	RiskBlocked Risk = "blocked"
)

// Plan describes how the layout of one type changes between two versions.
type Plan struct {
	Type string
	From version.Version
	To   version.Version

	// Added fields exist at To but not at From. Defaulted is the subset
	// that can be produced without data.
	Added     []string
	Defaulted []string
	// Removed fields exist at From but not at To; their data is dropped.
	Removed []string
	// Blocked fields make Migrate fail: the value at To needs them, the
	// data lacks them and nothing can stand in.
	Blocked []string

	// Substituted variants are replaced by their fallback at To.
	Substituted []string
	// Unsupported variants cannot be represented at To.
	Unsupported []string

	Risk Risk
}

// MigrationCost is a rough measure of the work a Plan implies.
type MigrationCost struct {
	FieldsRead     int
	FieldsWritten  int
	FieldsDropped  int
	RiskAssessment Risk
}

// Migrator rewrites payloads of registered types from one version to
// another.
type Migrator struct {
	engine *codec.Engine
}

// NewMigrator creates a new Migrator.
func NewMigrator(engine *codec.Engine) *Migrator {
	return &Migrator{
		engine: engine,
	}
}

// Migrate reads a typeName payload written at from and writes it at to.
func (m *Migrator) Migrate(r encoding.Reader, w encoding.Writer, typeName string, from, to version.Version) error {
	desc, err := m.engine.Registry().Lookup(typeName)
	if err != nil {
		return err
	}
	ptr := reflect.New(desc.GoType())
	if err = m.engine.DecodeFrom(r, ptr.Interface(), from, to); err != nil {
		return err
	}
	return m.engine.Encode(w, ptr.Interface(), to)
}

// MigrateBytes is Migrate over an in-memory payload.
func (m *Migrator) MigrateBytes(f encoding.Format, data []byte, typeName string, from, to version.Version) ([]byte, error) {
	r, err := encoding.NewReader(f, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	w, err := encoding.NewWriter(f, &out)
	if err != nil {
		return nil, err
	}
	if err = m.Migrate(r, w, typeName, from, to); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// PlanMigration compares the layouts of typeName at from and to.
func (m *Migrator) PlanMigration(typeName string, from, to version.Version) (Plan, error) {
	desc, err := m.engine.Registry().Lookup(typeName)
	if err != nil {
		return Plan{}, err
	}
	return PlanFor(desc, from, to)
}

// PlanFor is PlanMigration for a descriptor.
func PlanFor(desc *schema.TypeDescriptor, from, to version.Version) (Plan, error) {
	rng := desc.Range()
	if !rng.Contains(from) || !rng.Contains(to) {
		return Plan{}, schema.NewError(schema.ErrUnsupportedVersion, desc.Name(), "").
			WithContext("from", from).
			WithContext("to", to).
			WithContext("range", rng.String())
	}

	plan := Plan{Type: desc.Name(), From: from, To: to}
	for _, f := range desc.Fields() {
		before, after := f.ActiveAt(from), f.ActiveAt(to)
		blocked := !after && !f.CanBeAbsent()
		switch {
		case before && !after:
			plan.Removed = append(plan.Removed, f.Name)
		case !before && after:
			plan.Added = append(plan.Added, f.Name)
			if from > to || !f.CanBeAbsent() {
				blocked = true
			} else {
				plan.Defaulted = append(plan.Defaulted, f.Name)
			}
		}
		if blocked {
			plan.Blocked = append(plan.Blocked, f.Name)
		}
	}
	for _, s := range desc.Variants() {
		if !s.ActiveAt(from) || s.ActiveAt(to) {
			continue
		}
		if fb, ok := desc.Variant(s.Fallback); s.HasFallback && ok && fb.ActiveAt(to) {
			plan.Substituted = append(plan.Substituted, s.Name)
		} else {
			plan.Unsupported = append(plan.Unsupported, s.Name)
		}
	}

	switch {
	case len(plan.Blocked) > 0:
		plan.Risk = RiskBlocked
	case len(plan.Removed) > 0 || len(plan.Substituted) > 0 || len(plan.Unsupported) > 0:
		plan.Risk = RiskLossy
	case len(plan.Added) > 0:
		plan.Risk = RiskLow
	default:
		plan.Risk = RiskNone
	}
	return plan, nil
}

// EstimateMigrationCost counts the top-level fields touched by a plan.
// Nested types are not expanded.
func (m *Migrator) EstimateMigrationCost(plan Plan) (MigrationCost, error) {
	desc, err := m.engine.Registry().Lookup(plan.Type)
	if err != nil {
		return MigrationCost{}, err
	}
	cost := MigrationCost{RiskAssessment: plan.Risk, FieldsDropped: len(plan.Removed)}
	for _, f := range desc.Fields() {
		if f.ActiveAt(plan.From) {
			cost.FieldsRead++
		}
		if f.ActiveAt(plan.To) {
			cost.FieldsWritten++
		}
	}
	return cost, nil
}
