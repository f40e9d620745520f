package registry

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zeusync/versionize/internal/core/observability/log"
	"github.com/zeusync/versionize/internal/core/schema"
	"github.com/zeusync/versionize/pkg/version"
)

type user struct {
	Name  string
	Email string `versionize:"since=2,optional"`
}

type account struct {
	ID uint64
}

type status uint8

func descriptors(t *testing.T) (*schema.TypeDescriptor, *schema.TypeDescriptor, *schema.TypeDescriptor) {
	t.Helper()
	u, err := schema.Struct[user]("user").Build()
	require.NoError(t, err)
	a, err := schema.Struct[account]("account").Build()
	require.NoError(t, err)
	s, err := schema.Enum[status]("status").
		Unit("active", 0, version.Always()).
		Unit("banned", 1, version.Since(3), schema.FallbackTo(0)).
		Build()
	require.NoError(t, err)
	return u, a, s
}

func TestRegisterAndLookup(t *testing.T) {
	u, a, s := descriptors(t)
	r := New()
	require.NoError(t, r.Register(u))
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(s))

	got, err := r.Lookup("user")
	require.NoError(t, err)
	assert.Same(t, u, got)

	byType, ok := r.LookupType(reflect.TypeFor[status]())
	require.True(t, ok)
	assert.Same(t, s, byType)

	_, ok = r.LookupType(reflect.TypeFor[int]())
	assert.False(t, ok)

	_, err = r.Lookup("missing")
	require.ErrorIs(t, err, schema.ErrNotRegistered)

	assert.Equal(t, []string{"account", "status", "user"}, r.Names())
	assert.Equal(t, 3, r.Len())
}

type event interface{ kind() string }

type alarm interface{ kind() string }

type opened struct{ By string }

type closed struct{}

func (opened) kind() string { return "opened" }
func (closed) kind() string { return "closed" }

func TestEnumsOf(t *testing.T) {
	ev := schema.Enum[event]("event").
		Variant("opened", 0, version.Always(), opened{}).
		Variant("closed", 1, version.Always(), closed{}).
		MustBuild()
	al := schema.Enum[alarm]("alarm").
		Variant("opened", 0, version.Always(), opened{}).
		MustBuild()
	_, _, s := descriptors(t)
	r := New().MustRegister(ev, al, s)

	assert.Equal(t, []*schema.TypeDescriptor{ev, al}, r.EnumsOf(reflect.TypeFor[opened]()))
	assert.Equal(t, []*schema.TypeDescriptor{ev}, r.EnumsOf(reflect.TypeFor[closed]()))
	assert.Empty(t, r.EnumsOf(reflect.TypeFor[status]()))
	assert.Empty(t, r.EnumsOf(reflect.TypeFor[int]()))
}

func TestRegisterDuplicates(t *testing.T) {
	u, _, _ := descriptors(t)
	r := New().MustRegister(u)

	err := r.Register(u)
	require.ErrorIs(t, err, schema.ErrAlreadyRegistered)

	sameType, err := schema.Struct[user]("user2").Build()
	require.NoError(t, err)
	err = r.Register(sameType)
	require.ErrorIs(t, err, schema.ErrAlreadyRegistered)
	assert.Contains(t, err.Error(), "user2")

	require.ErrorIs(t, r.Register(nil), schema.ErrInvalidDescriptor)
}

func TestFreeze(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	u, a, _ := descriptors(t)
	r := New(WithLogger(log.FromZap(zap.New(core))))
	require.NoError(t, r.Register(u))

	r.Freeze()
	r.Freeze()
	assert.True(t, r.Frozen())

	err := r.Register(a)
	require.ErrorIs(t, err, schema.ErrRegistryFrozen)

	assert.Equal(t, 1, logs.FilterMessage("Type registered").Len())
	assert.Equal(t, 1, logs.FilterMessage("Registry frozen").Len())
	assert.Equal(t, 1, logs.FilterMessage("Registration after freeze").Len())

	got, err := r.Lookup("user")
	require.NoError(t, err)
	assert.Same(t, u, got)
}

func TestConcurrentLookupAfterFreeze(t *testing.T) {
	u, a, s := descriptors(t)
	r := New().MustRegister(u, a, s)
	r.Freeze()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				d, err := r.Lookup("status")
				if err != nil || d != s {
					t.Errorf("lookup status: %v", err)
					return
				}
				if _, ok := r.LookupType(reflect.TypeFor[user]()); !ok {
					t.Errorf("lookup user type failed")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestMustRegisterPanics(t *testing.T) {
	u, _, _ := descriptors(t)
	r := New().MustRegister(u)
	assert.Panics(t, func() { r.MustRegister(u) })
}
