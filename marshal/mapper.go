// Package marshal converts values across the native boundary and runs
// boundary calls through the exception state machine.
//
// The Mapper is table-driven: one codec per TypeRef kind, each with an
// encode (native → host) and a decode (host → native) side. Class and
// handle codecs defer instance materialization to a Realm, implemented
// by the bind package, so the mapper itself stays free of any instance
// model.
package marshal

import (
	"reflect"

	"fortio.org/safecast"

	"github.com/refract-io/refract/decl"
	"github.com/refract-io/refract/handle"
	"github.com/refract-io/refract/host"
)

// Options tune marshaling behavior.
type Options struct {
	// LegacyMapValues switches class-valued marshaling to the raw
	// map representation (property name → value) instead of bound
	// instances. Off by default; the canonical representation is a
	// bound instance with copy semantics.
	LegacyMapValues bool
}

// Realm materializes and resolves bound instances for the mapper.
type Realm interface {
	// Decl returns the declaration bound under a class name.
	Decl(class string) (*decl.ClassDecl, bool)
	// WrapPointer binds an instance around an existing *T.
	WrapPointer(class string, ptr reflect.Value) (host.Value, error)
	// WrapShared binds an instance around an already-retained share.
	WrapShared(class string, share handle.SharedHandle) (host.Value, error)
	// NativeOf returns the class name and the *T behind a bound
	// object value.
	NativeOf(v host.Value) (string, reflect.Value, error)
	// SharedOf returns the share behind a bound object, or nil when
	// the object is not share-backed.
	SharedOf(v host.Value) handle.SharedHandle
}

// Mapper converts native values to and from host values per TypeRef.
type Mapper struct {
	realm Realm
	opts  Options
}

// NewMapper builds a mapper over realm.
func NewMapper(realm Realm, opts Options) *Mapper {
	return &Mapper{realm: realm, opts: opts}
}

// Options returns the mapper's options.
func (m *Mapper) Options() Options { return m.opts }

type codec struct {
	encode func(m *Mapper, t decl.TypeRef, rv reflect.Value) (host.Value, error)
	decode func(m *Mapper, t decl.TypeRef, v host.Value, dst reflect.Value) error
}

// codecs is populated in init: decodeFunc reaches Encode through the
// host-func adapter, so a composite initializer would form an
// initialization cycle with this map.
var codecs map[decl.Kind]codec

func init() {
	codecs = map[decl.Kind]codec{
		decl.KindBool:   {encodeBool, decodeBool},
		decl.KindInt:    {encodeInt, decodeInt},
		decl.KindUint:   {encodeUint, decodeUint},
		decl.KindFloat:  {encodeFloat, decodeFloat},
		decl.KindText:   {encodeText, decodeText},
		decl.KindSeq:    {encodeSeq, decodeSeq},
		decl.KindHandle: {encodeHandle, decodeHandle},
		decl.KindClass:  {encodeClass, decodeClass},
		decl.KindFunc:   {encodeFunc, decodeFunc},
	}
}

// Encode converts a native value to its host representation.
func (m *Mapper) Encode(t decl.TypeRef, rv reflect.Value) (host.Value, error) {
	c, ok := codecs[t.Kind]
	if !ok {
		return host.Nil, marshalErrf("no codec for kind %s", t.Kind)
	}
	return c.encode(m, t, rv)
}

// Decode converts a host value into dst, an addressable native value of
// t's Go type. On error dst is left untouched.
func (m *Mapper) Decode(t decl.TypeRef, v host.Value, dst reflect.Value) error {
	c, ok := codecs[t.Kind]
	if !ok {
		return marshalErrf("no codec for kind %s", t.Kind)
	}
	return c.decode(m, t, v, dst)
}

// Compatible reports whether a host value's kind can in principle feed
// a parameter of type t. Constructor dispatch uses it to pick an
// overload by arity plus argument kind before any conversion runs;
// decode still enforces the details (ranges, lengths, classes).
func Compatible(t decl.TypeRef, v host.Value) bool {
	switch t.Kind {
	case decl.KindBool:
		return v.Kind() == host.KindBool
	case decl.KindInt, decl.KindUint:
		return v.Kind() == host.KindInt
	case decl.KindFloat:
		return v.Kind() == host.KindInt || v.Kind() == host.KindFloat
	case decl.KindText:
		return v.Kind() == host.KindText
	case decl.KindSeq:
		return v.Kind() == host.KindList
	case decl.KindHandle:
		return v.Kind() == host.KindNil || v.Kind() == host.KindObject || v.Kind() == host.KindMap
	case decl.KindClass:
		return v.Kind() == host.KindObject || v.Kind() == host.KindMap
	case decl.KindFunc:
		return v.Kind() == host.KindFunc || v.Kind() == host.KindNil
	default:
		return false
	}
}

// --- primitives ---

func encodeBool(_ *Mapper, _ decl.TypeRef, rv reflect.Value) (host.Value, error) {
	return host.Bool(rv.Bool()), nil
}

func decodeBool(_ *Mapper, _ decl.TypeRef, v host.Value, dst reflect.Value) error {
	if v.Kind() != host.KindBool {
		return marshalErrf("expected bool, got %s", v.Kind())
	}
	dst.SetBool(v.Bool())
	return nil
}

func encodeInt(_ *Mapper, _ decl.TypeRef, rv reflect.Value) (host.Value, error) {
	return host.Int(rv.Int()), nil
}

func decodeInt(_ *Mapper, _ decl.TypeRef, v host.Value, dst reflect.Value) error {
	var i int64
	switch v.Kind() {
	case host.KindInt:
		i = v.Int()
	case host.KindFloat:
		// Accept floats that carry an exact integer, nothing else.
		conv, err := safecast.Convert[int64](v.Float())
		if err != nil {
			return marshalErrf("float %v does not fit an integer slot", v.Float())
		}
		i = conv
	default:
		return marshalErrf("expected integer, got %s", v.Kind())
	}
	if dst.OverflowInt(i) {
		return marshalErrf("value %d overflows %s", i, dst.Type())
	}
	dst.SetInt(i)
	return nil
}

func encodeUint(_ *Mapper, _ decl.TypeRef, rv reflect.Value) (host.Value, error) {
	i, err := safecast.Conv[int64](rv.Uint())
	if err != nil {
		return host.Nil, marshalErrf("unsigned value %d exceeds the host integer range", rv.Uint())
	}
	return host.Int(i), nil
}

func decodeUint(_ *Mapper, _ decl.TypeRef, v host.Value, dst reflect.Value) error {
	var u uint64
	switch v.Kind() {
	case host.KindInt:
		conv, err := safecast.Conv[uint64](v.Int())
		if err != nil {
			return marshalErrf("negative value %d in unsigned slot", v.Int())
		}
		u = conv
	case host.KindFloat:
		conv, err := safecast.Convert[uint64](v.Float())
		if err != nil {
			return marshalErrf("float %v does not fit an unsigned slot", v.Float())
		}
		u = conv
	default:
		return marshalErrf("expected integer, got %s", v.Kind())
	}
	if dst.OverflowUint(u) {
		return marshalErrf("value %d overflows %s", u, dst.Type())
	}
	dst.SetUint(u)
	return nil
}

func encodeFloat(_ *Mapper, _ decl.TypeRef, rv reflect.Value) (host.Value, error) {
	return host.Float(rv.Float()), nil
}

func decodeFloat(_ *Mapper, _ decl.TypeRef, v host.Value, dst reflect.Value) error {
	var f float64
	switch v.Kind() {
	case host.KindFloat:
		f = v.Float()
	case host.KindInt:
		f = float64(v.Int())
	default:
		return marshalErrf("expected number, got %s", v.Kind())
	}
	if dst.OverflowFloat(f) {
		return marshalErrf("value %v overflows %s", f, dst.Type())
	}
	dst.SetFloat(f)
	return nil
}

// --- text ---

func encodeText(_ *Mapper, _ decl.TypeRef, rv reflect.Value) (host.Value, error) {
	return host.Text(rv.String()), nil
}

func decodeText(_ *Mapper, _ decl.TypeRef, v host.Value, dst reflect.Value) error {
	if v.Kind() != host.KindText {
		return marshalErrf("expected text, got %s", v.Kind())
	}
	dst.SetString(v.Text())
	return nil
}

// --- sequences ---

func encodeSeq(m *Mapper, t decl.TypeRef, rv reflect.Value) (host.Value, error) {
	n := rv.Len()
	items := make([]host.Value, n)
	for i := 0; i < n; i++ {
		item, err := m.Encode(*t.Elem, rv.Index(i))
		if err != nil {
			return host.Nil, err
		}
		items[i] = item
	}
	return host.ListOf(items...), nil
}

func decodeSeq(m *Mapper, t decl.TypeRef, v host.Value, dst reflect.Value) error {
	if v.Kind() != host.KindList {
		return marshalErrf("expected list, got %s", v.Kind())
	}
	items := v.List().Items
	if t.FixedLen >= 0 && len(items) != t.FixedLen {
		return marshalErrf("fixed sequence expects %d elements, got %d", t.FixedLen, len(items))
	}

	// Build the replacement fully before touching dst: a failed element
	// must not leave partial contents behind.
	var fresh reflect.Value
	if dst.Kind() == reflect.Slice {
		fresh = reflect.MakeSlice(dst.Type(), len(items), len(items))
	} else {
		fresh = reflect.New(dst.Type()).Elem()
	}
	for i, item := range items {
		if err := m.Decode(*t.Elem, item, fresh.Index(i)); err != nil {
			return err
		}
	}
	dst.Set(fresh)
	return nil
}

// --- smart handles ---

func encodeHandle(m *Mapper, t decl.TypeRef, rv reflect.Value) (host.Value, error) {
	if t.Owner == decl.Shared {
		sh := rv.Interface().(handle.SharedHandle)
		if sh.IsNil() {
			return host.Nil, nil
		}
		return m.realm.WrapShared(t.Class, sh.Retain())
	}
	if rv.IsNil() {
		return host.Nil, nil
	}
	return m.realm.WrapPointer(t.Class, rv)
}

func decodeHandle(m *Mapper, t decl.TypeRef, v host.Value, dst reflect.Value) error {
	if t.Owner == decl.Shared {
		return decodeSharedHandle(m, t, v, dst)
	}
	return decodeExclusiveHandle(m, t, v, dst)
}

func decodeExclusiveHandle(m *Mapper, t decl.TypeRef, v host.Value, dst reflect.Value) error {
	if v.IsNil() {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	// Any class-value-compatible payload becomes a fresh native value
	// whose lifetime belongs exclusively to the receiving slot.
	p := reflect.New(dst.Type().Elem())
	if err := m.decodeClassInto(t.Class, v, p.Elem()); err != nil {
		return err
	}
	dst.Set(p)
	return nil
}

func decodeSharedHandle(m *Mapper, t decl.TypeRef, v host.Value, dst reflect.Value) error {
	old, _ := dst.Interface().(handle.SharedHandle)

	switch v.Kind() {
	case host.KindNil:
		dst.Set(reflect.Zero(dst.Type()))
	case host.KindObject:
		cls, _, err := m.realm.NativeOf(v)
		if err != nil {
			return err
		}
		if cls != t.Class {
			return marshalErrf("expected %s, got %s", t.Class, cls)
		}
		if sh := m.realm.SharedOf(v); sh != nil {
			// Same share, one more reference.
			dst.Set(reflect.ValueOf(sh.Retain()))
			break
		}
		// Not share-backed: adopt a copy into a fresh share.
		if err := adoptIntoShare(m, t, v, dst); err != nil {
			return err
		}
	case host.KindMap:
		if err := adoptIntoShare(m, t, v, dst); err != nil {
			return err
		}
	default:
		return marshalErrf("expected object or no value, got %s", v.Kind())
	}

	// The slot gave up its previous reference only once the new one is
	// safely in place.
	if old != nil && !old.IsNil() {
		old.Release()
	}
	return nil
}

// adoptIntoShare copies a class-value-compatible payload into a fresh
// share (count one) stored at dst.
func adoptIntoShare(m *Mapper, t decl.TypeRef, v host.Value, dst reflect.Value) error {
	pointee := handle.PointeeOf(dst.Type())
	p := reflect.New(pointee)
	if err := m.decodeClassInto(t.Class, v, p.Elem()); err != nil {
		return err
	}
	sv := reflect.New(dst.Type())
	sv.MethodByName("Reset").Call([]reflect.Value{p})
	dst.Set(sv.Elem())
	return nil
}

// --- class values ---

func encodeClass(m *Mapper, t decl.TypeRef, rv reflect.Value) (host.Value, error) {
	if m.opts.LegacyMapValues {
		return m.encodeClassAsMap(t.Class, rv)
	}
	cd, ok := m.realm.Decl(t.Class)
	if !ok {
		return host.Nil, marshalErrf("unknown class %s", t.Class)
	}
	// Class values cross by copy. The bound instance owns the copy, so
	// later mutations on either side stay invisible to the other.
	p := reflect.New(rv.Type())
	m.copyStruct(cd, rv, p.Elem())
	return m.realm.WrapPointer(t.Class, p)
}

func (m *Mapper) encodeClassAsMap(class string, rv reflect.Value) (host.Value, error) {
	cd, ok := m.realm.Decl(class)
	if !ok {
		return host.Nil, marshalErrf("unknown class %s", class)
	}
	mp := host.NewMap()
	for i := range cd.Fields {
		f := &cd.Fields[i]
		fv, err := m.Encode(f.Type, rv.FieldByName(f.GoName))
		if err != nil {
			return host.Nil, err
		}
		mp.Set(f.Name, fv)
	}
	return host.FromMap(mp), nil
}

func decodeClass(m *Mapper, t decl.TypeRef, v host.Value, dst reflect.Value) error {
	return m.decodeClassInto(t.Class, v, dst)
}

// decodeClassInto copies a class-value-compatible payload (a bound
// object of the class, or a property map) into dst, replacing its prior
// contents.
func (m *Mapper) decodeClassInto(class string, v host.Value, dst reflect.Value) error {
	cd, ok := m.realm.Decl(class)
	if !ok {
		return marshalErrf("unknown class %s", class)
	}

	switch v.Kind() {
	case host.KindObject:
		srcClass, src, err := m.realm.NativeOf(v)
		if err != nil {
			return err
		}
		if srcClass != class {
			return marshalErrf("expected %s, got %s", class, srcClass)
		}
		m.copyStruct(cd, src.Elem(), dst)
		return nil
	case host.KindMap:
		mp := v.Map()
		for i := range cd.Fields {
			f := &cd.Fields[i]
			if !mp.Has(f.Name) {
				continue
			}
			if err := m.Decode(f.Type, mp.Get(f.Name), dst.FieldByName(f.GoName)); err != nil {
				return err
			}
		}
		return nil
	default:
		return marshalErrf("expected object or map for %s, got %s", class, v.Kind())
	}
}

// copyStruct performs the class-value copy: a wholesale struct
// assignment plus ownership fixups, so copies never alias handles with
// the source.
func (m *Mapper) copyStruct(cd *decl.ClassDecl, src, dst reflect.Value) {
	dst.Set(src)
	for i := range cd.Fields {
		f := &cd.Fields[i]
		if f.Type.Kind != decl.KindHandle {
			continue
		}
		fv := dst.FieldByName(f.GoName)
		if f.Type.Owner == decl.Shared {
			sh := fv.Interface().(handle.SharedHandle)
			if !sh.IsNil() {
				fv.Set(reflect.ValueOf(sh.Retain()))
			}
			continue
		}
		// Exclusive handles deep-copy their pointee: two owners of one
		// pointer would break exclusivity.
		if !fv.IsNil() {
			np := reflect.New(fv.Type().Elem())
			if fd, ok := m.realm.Decl(f.Type.Class); ok {
				m.copyStruct(fd, fv.Elem(), np.Elem())
			} else {
				np.Elem().Set(fv.Elem())
			}
			fv.Set(np)
		}
	}
}
