package bind

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"

	"github.com/refract-io/refract/decl"
	"github.com/refract-io/refract/handle"
	"github.com/refract-io/refract/host"
	"github.com/refract-io/refract/marshal"
)

var log = commonlog.GetLogger("refract.bind")

// Registry holds every bound class and every live instance, and backs
// the mapper as its realm. All methods are safe for concurrent use;
// distinct instances may be driven from distinct goroutines, while a
// single instance expects one caller at a time, as the natives behind
// it do.
type Registry struct {
	mu        sync.RWMutex
	classes   map[string]*BoundClass
	instances map[uint64]*Instance
	nextID    atomic.Uint64
	mapper    *marshal.Mapper
}

// NewRegistry builds an empty registry.
func NewRegistry(opts marshal.Options) *Registry {
	r := &Registry{
		classes:   make(map[string]*BoundClass),
		instances: make(map[uint64]*Instance),
	}
	r.mapper = marshal.NewMapper(r, opts)
	return r
}

// Mapper returns the registry's value mapper.
func (r *Registry) Mapper() *marshal.Mapper { return r.mapper }

// Register emits the binding for one declaration. Registering two
// classes under one name is a declaration error.
func (r *Registry) Register(cd *decl.ClassDecl) (*BoundClass, error) {
	bc, err := newBoundClass(r, cd)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.classes[cd.Name]; dup {
		return nil, &decl.DeclarationError{Class: cd.Name, Reason: "class name already bound"}
	}
	r.classes[cd.Name] = bc
	log.Debugf("bound %s: %d properties, %d methods, %d constructors",
		cd.Name, len(bc.props), len(bc.methods)+len(bc.statics), len(cd.Ctors))
	return bc, nil
}

// RegisterAll emits bindings for a whole declaration set, in set
// order. The first failure stops registration.
func (r *Registry) RegisterAll(set *decl.Set) error {
	for _, cd := range set.Decls {
		if _, err := r.Register(cd); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the binding registered under name.
func (r *Registry) Lookup(name string) (*BoundClass, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bc, ok := r.classes[name]
	return bc, ok
}

// Classes returns the registered class names, sorted.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InstanceCount returns the number of live instances.
func (r *Registry) InstanceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// Instance returns a live instance by id.
func (r *Registry) Instance(id uint64) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// adopt wires a fresh instance around ptr and stores it. share, when
// non-nil, carries a reference the instance now owns.
func (r *Registry) adopt(bc *BoundClass, ptr reflect.Value, share handle.SharedHandle) *Instance {
	inst := &Instance{
		id:    r.nextID.Add(1),
		class: bc,
		ptr:   ptr,
		share: share,
	}
	inst.touch()
	r.mu.Lock()
	r.instances[inst.id] = inst
	r.mu.Unlock()
	return inst
}

func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	delete(r.instances, id)
	r.mu.Unlock()
}

// Sweep releases instances not touched within ttl and reports how many
// it released.
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl).UnixNano()

	r.mu.RLock()
	var stale []*Instance
	for _, inst := range r.instances {
		if inst.lastUsed.Load() < cutoff {
			stale = append(stale, inst)
		}
	}
	r.mu.RUnlock()

	for _, inst := range stale {
		inst.Release()
	}
	if len(stale) > 0 {
		log.Infof("swept %d stale instances", len(stale))
	}
	return len(stale)
}

// StartSweeper runs periodic TTL sweeps in the background and returns
// a stop function.
func (r *Registry) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				r.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}

// --- marshal.Realm ---

// Decl returns the declaration bound under a class name.
func (r *Registry) Decl(class string) (*decl.ClassDecl, bool) {
	bc, ok := r.Lookup(class)
	if !ok {
		return nil, false
	}
	return bc.decl, true
}

// WrapPointer binds an instance around an existing *T.
func (r *Registry) WrapPointer(class string, ptr reflect.Value) (host.Value, error) {
	bc, ok := r.Lookup(class)
	if !ok {
		return host.Nil, fmt.Errorf("bind: unknown class %s", class)
	}
	return r.adopt(bc, ptr, nil).Value(), nil
}

// WrapShared binds an instance around an already-retained share. The
// instance owns the reference and gives it up on release.
func (r *Registry) WrapShared(class string, share handle.SharedHandle) (host.Value, error) {
	bc, ok := r.Lookup(class)
	if !ok {
		share.Release()
		return host.Nil, fmt.Errorf("bind: unknown class %s", class)
	}
	return r.adopt(bc, reflect.ValueOf(share.Raw()), share).Value(), nil
}

// NativeOf returns the class name and native pointer behind a bound
// object value.
func (r *Registry) NativeOf(v host.Value) (string, reflect.Value, error) {
	inst, ok := v.Object().(*Instance)
	if !ok {
		return "", reflect.Value{}, fmt.Errorf("bind: value is not a bound object")
	}
	if err := inst.guard(inst.class.Name()); err != nil {
		return "", reflect.Value{}, err
	}
	return inst.class.Name(), inst.ptr, nil
}

// SharedOf returns the share behind a bound object, or nil when the
// object does not hold one.
func (r *Registry) SharedOf(v host.Value) handle.SharedHandle {
	inst, ok := v.Object().(*Instance)
	if !ok || inst.released.Load() || inst.share == nil {
		return nil
	}
	return inst.share
}
