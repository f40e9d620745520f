// Package compat builds compatibility matrices: a sample value is encoded
// at every version of a range and each payload is decoded at every target
// of the same range.
package compat

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/versionize/internal/core/codec"
	"github.com/zeusync/versionize/internal/core/observability/log"
	"github.com/zeusync/versionize/internal/core/schema"
	"github.com/zeusync/versionize/pkg/encoding"
	"github.com/zeusync/versionize/pkg/version"
)

// Status classifies one cell of a Matrix.
type Status uint8

const (
	StatusOK Status = iota
	// StatusEncodeFailed: the sample could not be written at the wire version.
	StatusEncodeFailed
	// StatusTooNew: the payload carries data the target cannot represent.
	StatusTooNew
	// StatusUnsupported: the wire or target version is outside the type's range.
	StatusUnsupported
	// StatusMissingDefault: a field the target needs has no default.
	StatusMissingDefault
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEncodeFailed:
		return "encode"
	case StatusTooNew:
		return "too-new"
	case StatusUnsupported:
		return "unsupported"
	case StatusMissingDefault:
		return "no-default"
	default:
		return "failed"
	}
}

func classify(err error) Status {
	if err == nil {
		return StatusOK
	}
	switch schema.GetErrorCode(err) {
	case schema.ErrorCodeVersionTooNew:
		return StatusTooNew
	case schema.ErrorCodeUnsupportedVersion:
		return StatusUnsupported
	case schema.ErrorCodeMissingDefault:
		return StatusMissingDefault
	default:
		return StatusFailed
	}
}

// Cell is the outcome of decoding a payload written at Wire as Target.
type Cell struct {
	Wire   version.Version
	Target version.Version
	Status Status
	// Bytes is the payload size at Wire.
	Bytes int
	Err   error
}

// OK reports whether the payload decoded.
func (c Cell) OK() bool { return c.Status == StatusOK }

// Matrix holds one row per wire version and one column per target version.
type Matrix struct {
	Type     string
	From, To version.Version
	cells    [][]Cell
}

// Rows returns the cells indexed by [wire-From][target-From].
func (m *Matrix) Rows() [][]Cell { return m.cells }

// Cell returns the outcome for (wire, target).
func (m *Matrix) Cell(wire, target version.Version) (Cell, bool) {
	if wire < m.From || wire > m.To || target < m.From || target > m.To {
		return Cell{}, false
	}
	return m.cells[wire-m.From][target-m.From], true
}

// Failures lists every cell that did not decode, in row order.
func (m *Matrix) Failures() []Cell {
	var out []Cell
	for _, row := range m.cells {
		for _, c := range row {
			if !c.OK() {
				out = append(out, c)
			}
		}
	}
	return out
}

// Compatible reports whether every cell decoded.
func (m *Matrix) Compatible() bool { return len(m.Failures()) == 0 }

// String renders the matrix as a grid, wire versions down and targets
// across.
func (m *Matrix) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nwire\\target", m.Type)
	for t := int(m.From); t <= int(m.To); t++ {
		fmt.Fprintf(&b, " %11d", t)
	}
	for _, row := range m.cells {
		fmt.Fprintf(&b, "\n%11d", row[0].Wire)
		for _, c := range row {
			fmt.Fprintf(&b, " %11s", c.Status)
		}
	}
	return b.String()
}

// Option configures a Checker.
type Option func(*Checker)

// WithFormat selects the byte codec payloads are written with.
func WithFormat(f encoding.Format) Option {
	return func(c *Checker) { c.format = f }
}

// WithWorkers bounds the number of concurrent encode/decode jobs.
func WithWorkers(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Log) Option {
	return func(c *Checker) { c.logger = l }
}

// Checker computes compatibility matrices with an Engine.
type Checker struct {
	engine  *codec.Engine
	format  encoding.Format
	workers int
	logger  log.Log
}

// New creates a Checker.
func New(engine *codec.Engine, opts ...Option) *Checker {
	c := &Checker{
		engine:  engine,
		format:  encoding.FormatBinary,
		workers: runtime.GOMAXPROCS(0),
		logger:  log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check encodes sample at every version in [from, to] and decodes each
// payload at every version in [from, to]. Decode failures are recorded in
// the matrix; the returned error is only set for invalid arguments or a
// cancelled context.
func (c *Checker) Check(ctx context.Context, sample any, from, to version.Version) (*Matrix, error) {
	if err := version.Between(from, to).Validate(); err != nil {
		return nil, err
	}
	t, desc, err := c.describe(sample)
	if err != nil {
		return nil, err
	}

	n := int(to-from) + 1
	m := &Matrix{Type: desc.Name(), From: from, To: to, cells: make([][]Cell, n)}
	payloads := make([][]byte, n)
	encodeErrs := make([]error, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var buf bytes.Buffer
			w, err := encoding.NewWriter(c.format, &buf)
			if err != nil {
				return err
			}
			encodeErrs[i] = c.engine.Encode(w, sample, from+version.Version(i))
			payloads[i] = buf.Bytes()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range n {
		m.cells[i] = make([]Cell, n)
		for j := range n {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				m.cells[i][j] = c.cell(t, payloads[i], encodeErrs[i], from+version.Version(i), from+version.Version(j))
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Debug("Compatibility matrix computed",
		log.String("type", m.Type),
		log.Uint16("from", uint16(from)),
		log.Uint16("to", uint16(to)),
		log.Int("failures", len(m.Failures())),
	)
	return m, nil
}

// CheckType checks sample across its descriptor's versions, from the range
// start (at least Initial) to Latest.
func (c *Checker) CheckType(ctx context.Context, sample any) (*Matrix, error) {
	_, desc, err := c.describe(sample)
	if err != nil {
		return nil, err
	}
	from := max(desc.Range().Start, version.Initial)
	return c.Check(ctx, sample, from, max(from, desc.Latest()))
}

func (c *Checker) cell(t reflect.Type, payload []byte, encodeErr error, wire, target version.Version) Cell {
	cell := Cell{Wire: wire, Target: target, Bytes: len(payload)}
	if encodeErr != nil {
		cell.Status, cell.Err = StatusEncodeFailed, encodeErr
		return cell
	}
	r, err := encoding.NewReader(c.format, bytes.NewReader(payload))
	if err == nil {
		err = c.engine.DecodeFrom(r, reflect.New(t).Interface(), wire, target)
	}
	cell.Status, cell.Err = classify(err), err
	return cell
}

func (c *Checker) describe(sample any) (reflect.Type, *schema.TypeDescriptor, error) {
	t := reflect.TypeOf(sample)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return nil, nil, schema.NewError(schema.ErrInvalidValue, "", "cannot check nil")
	}
	desc, ok := c.engine.Registry().LookupType(t)
	if !ok {
		return nil, nil, schema.NewError(schema.ErrNotRegistered, t.String(), "")
	}
	return t, desc, nil
}
