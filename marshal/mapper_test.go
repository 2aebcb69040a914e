package marshal

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/refract-io/refract/decl"
	"github.com/refract-io/refract/handle"
	"github.com/refract-io/refract/host"
)

// ---------------------------------------------------------------------------
// Stub Realm
// ---------------------------------------------------------------------------

// boundStub carries the minimum an object payload needs for the mapper:
// a class name, the native pointer, and the share when share-backed.
type boundStub struct {
	class string
	ptr   reflect.Value
	share handle.SharedHandle
}

type stubRealm struct {
	decls map[string]*decl.ClassDecl
}

func newStubRealm(decls ...*decl.ClassDecl) *stubRealm {
	r := &stubRealm{decls: make(map[string]*decl.ClassDecl)}
	for _, d := range decls {
		r.decls[d.Name] = d
	}
	return r
}

func (r *stubRealm) Decl(name string) (*decl.ClassDecl, bool) {
	d, ok := r.decls[name]
	return d, ok
}

func (r *stubRealm) WrapPointer(class string, ptr reflect.Value) (host.Value, error) {
	return host.Object(&boundStub{class: class, ptr: ptr}), nil
}

func (r *stubRealm) WrapShared(class string, share handle.SharedHandle) (host.Value, error) {
	return host.Object(&boundStub{class: class, ptr: reflect.ValueOf(share.Raw()), share: share}), nil
}

func (r *stubRealm) NativeOf(v host.Value) (string, reflect.Value, error) {
	o, ok := v.Object().(*boundStub)
	if !ok {
		return "", reflect.Value{}, errors.New("not a bound object")
	}
	return o.class, o.ptr, nil
}

func (r *stubRealm) SharedOf(v host.Value) handle.SharedHandle {
	if o, ok := v.Object().(*boundStub); ok {
		return o.share
	}
	return nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

type point struct {
	X float64
	Y float64
}

func pointDecl() *decl.ClassDecl {
	f := decl.TypeRef{Kind: decl.KindFloat}
	return &decl.ClassDecl{
		Name: "Point",
		Fields: []decl.FieldDecl{
			{GoName: "X", Name: "x", Type: f},
			{GoName: "Y", Name: "y", Type: f},
		},
		GoType: reflect.TypeOf(point{}),
	}
}

func newTestMapper(opts Options) (*Mapper, *stubRealm) {
	realm := newStubRealm(pointDecl())
	return NewMapper(realm, opts), realm
}

// ---------------------------------------------------------------------------
// Primitive and Text Codec Tests
// ---------------------------------------------------------------------------

func TestEncodePrimitives(t *testing.T) {
	m, _ := newTestMapper(Options{})
	tests := []struct {
		name string
		t    decl.TypeRef
		in   any
		want host.Value
	}{
		{"bool", decl.TypeRef{Kind: decl.KindBool}, true, host.Bool(true)},
		{"int", decl.TypeRef{Kind: decl.KindInt}, int64(-7), host.Int(-7)},
		{"int32", decl.TypeRef{Kind: decl.KindInt}, int32(9), host.Int(9)},
		{"uint16", decl.TypeRef{Kind: decl.KindUint}, uint16(65535), host.Int(65535)},
		{"float", decl.TypeRef{Kind: decl.KindFloat}, 2.5, host.Float(2.5)},
		{"float32", decl.TypeRef{Kind: decl.KindFloat}, float32(1.5), host.Float(1.5)},
		{"text", decl.TypeRef{Kind: decl.KindText}, "héllo, 世界", host.Text("héllo, 世界")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Encode(tt.t, reflect.ValueOf(tt.in))
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if !host.Equal(got, tt.want) {
				t.Errorf("Encode = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecodeNumericEdges(t *testing.T) {
	m, _ := newTestMapper(Options{})
	intRef := decl.TypeRef{Kind: decl.KindInt}
	uintRef := decl.TypeRef{Kind: decl.KindUint}
	floatRef := decl.TypeRef{Kind: decl.KindFloat}

	tests := []struct {
		name    string
		t       decl.TypeRef
		in      host.Value
		dst     any
		wantErr bool
	}{
		{"int64 max", intRef, host.Int(math.MaxInt64), int64(0), false},
		{"int32 overflow", intRef, host.Int(1 << 40), int32(0), true},
		{"int8 fits", intRef, host.Int(-128), int8(0), false},
		{"int8 overflow", intRef, host.Int(128), int8(0), true},
		{"exact float to int", intRef, host.Float(3.0), int64(0), false},
		{"fractional float to int", intRef, host.Float(3.5), int64(0), true},
		{"negative into uint", uintRef, host.Int(-1), uint64(0), true},
		{"uint8 overflow", uintRef, host.Int(256), uint8(0), true},
		{"int widens to float", floatRef, host.Int(7), float64(0), false},
		{"float32 overflow", floatRef, host.Float(math.MaxFloat64), float32(0), true},
		{"text into int", intRef, host.Text("42"), int64(0), true},
		{"bool into float", floatRef, host.Bool(true), float64(0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := reflect.New(reflect.TypeOf(tt.dst)).Elem()
			err := m.Decode(tt.t, tt.in, dst)
			if tt.wantErr {
				var me *MarshalError
				if !errors.As(err, &me) {
					t.Fatalf("Decode err = %v, want *MarshalError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
		})
	}
}

func TestDecodeErrorLeavesDestination(t *testing.T) {
	m, _ := newTestMapper(Options{})
	n := int32(42)
	dst := reflect.ValueOf(&n).Elem()
	if err := m.Decode(decl.TypeRef{Kind: decl.KindInt}, host.Int(1<<40), dst); err == nil {
		t.Fatal("expected an overflow error")
	}
	if n != 42 {
		t.Errorf("failed decode clobbered the destination: %d", n)
	}
}

func TestEncodeUintBeyondHostRange(t *testing.T) {
	m, _ := newTestMapper(Options{})
	_, err := m.Encode(decl.TypeRef{Kind: decl.KindUint}, reflect.ValueOf(uint64(math.MaxUint64)))
	var me *MarshalError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want *MarshalError", err)
	}
	if !strings.Contains(me.Detail, "range") {
		t.Errorf("Detail = %q, want a range complaint", me.Detail)
	}
}

type severity int16

func TestNamedIntegerRoundTrip(t *testing.T) {
	m, _ := newTestMapper(Options{})
	intRef := decl.TypeRef{Kind: decl.KindInt}

	v, err := m.Encode(intRef, reflect.ValueOf(severity(3)))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !host.Equal(v, host.Int(3)) {
		t.Errorf("Encode = %s, want 3", v)
	}

	var s severity
	dst := reflect.ValueOf(&s).Elem()
	if err := m.Decode(intRef, host.Int(7), dst); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if s != severity(7) {
		t.Errorf("decoded severity = %d, want 7", s)
	}

	// The named type keeps its underlying range.
	err = m.Decode(intRef, host.Int(1<<20), dst)
	var me *MarshalError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want *MarshalError", err)
	}
	if s != severity(7) {
		t.Errorf("failed decode clobbered the destination: %d", s)
	}
}

// ---------------------------------------------------------------------------
// Sequence Codec Tests
// ---------------------------------------------------------------------------

func TestDecodeSeqReplacesWholesale(t *testing.T) {
	m, _ := newTestMapper(Options{})
	seq := decl.SeqOf(decl.TypeRef{Kind: decl.KindFloat})

	s := []float64{1, 2, 3}
	dst := reflect.ValueOf(&s).Elem()
	err := m.Decode(seq, host.ListOf(host.Float(9), host.Float(8)), dst)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(s, []float64{9, 8}) {
		t.Errorf("sequence = %v, want [9 8]", s)
	}

	// A bad element aborts the whole replacement.
	err = m.Decode(seq, host.ListOf(host.Float(1), host.Text("no")), dst)
	if err == nil {
		t.Fatal("expected an element decode error")
	}
	if !reflect.DeepEqual(s, []float64{9, 8}) {
		t.Errorf("failed decode left partial contents: %v", s)
	}
}

func TestDecodeFixedSeqLength(t *testing.T) {
	m, _ := newTestMapper(Options{})
	arr := decl.ArrayOf(3, decl.TypeRef{Kind: decl.KindFloat})

	var a [3]float64
	dst := reflect.ValueOf(&a).Elem()
	if err := m.Decode(arr, host.ListOf(host.Float(1), host.Float(2), host.Float(3)), dst); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if a != [3]float64{1, 2, 3} {
		t.Errorf("array = %v", a)
	}

	err := m.Decode(arr, host.ListOf(host.Float(1), host.Float(2)), dst)
	if err == nil || !strings.Contains(err.Error(), "3 elements, got 2") {
		t.Errorf("err = %v, want a length complaint", err)
	}
}

func TestSeqRoundTripNested(t *testing.T) {
	m, _ := newTestMapper(Options{})
	inner := decl.SeqOf(decl.TypeRef{Kind: decl.KindInt})
	outer := decl.SeqOf(inner)

	src := [][]int64{{1, 2}, {3}}
	v, err := m.Encode(outer, reflect.ValueOf(src))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var got [][]int64
	if err := m.Decode(outer, v, reflect.ValueOf(&got).Elem()); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(got, src) {
		t.Errorf("round trip = %v, want %v", got, src)
	}
}

// ---------------------------------------------------------------------------
// Class Value Codec Tests
// ---------------------------------------------------------------------------

func TestClassValueCrossesByCopy(t *testing.T) {
	m, realm := newTestMapper(Options{})
	ptRef := decl.TypeRef{Kind: decl.KindClass, Class: "Point"}

	orig := &point{X: 1, Y: 2}
	v, err := m.Encode(ptRef, reflect.ValueOf(orig).Elem())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if v.Kind() != host.KindObject {
		t.Fatalf("Kind = %s, want object", v.Kind())
	}

	_, ptr, err := realm.NativeOf(v)
	if err != nil {
		t.Fatal(err)
	}
	ptr.Elem().FieldByName("X").SetFloat(99)
	if orig.X != 1 {
		t.Error("bound value aliases its source")
	}

	var back point
	if err := m.Decode(ptRef, v, reflect.ValueOf(&back).Elem()); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if back.X != 99 || back.Y != 2 {
		t.Errorf("decoded copy = %+v", back)
	}
	ptr.Elem().FieldByName("Y").SetFloat(-5)
	if back.Y != 2 {
		t.Error("decoded value aliases the bound instance")
	}
}

func TestClassValueFromMapIsLenient(t *testing.T) {
	m, _ := newTestMapper(Options{})
	ptRef := decl.TypeRef{Kind: decl.KindClass, Class: "Point"}

	mp := host.NewMap()
	mp.Set("x", host.Float(3))
	mp.Set("color", host.Text("red")) // unknown keys are ignored

	got := point{X: 1, Y: 2}
	if err := m.Decode(ptRef, host.FromMap(mp), reflect.ValueOf(&got).Elem()); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.X != 3 {
		t.Errorf("X = %v, want 3", got.X)
	}
	if got.Y != 2 {
		t.Errorf("missing key should keep the current value, Y = %v", got.Y)
	}
}

func TestClassValueWrongClassRejected(t *testing.T) {
	m, realm := newTestMapper(Options{})
	v, _ := realm.WrapPointer("Other", reflect.ValueOf(&point{}))
	var got point
	err := m.Decode(decl.TypeRef{Kind: decl.KindClass, Class: "Point"}, v, reflect.ValueOf(&got).Elem())
	if err == nil || !strings.Contains(err.Error(), "expected Point") {
		t.Errorf("err = %v, want a class mismatch", err)
	}
}

func TestLegacyMapValues(t *testing.T) {
	m, _ := newTestMapper(Options{LegacyMapValues: true})
	v, err := m.Encode(decl.TypeRef{Kind: decl.KindClass, Class: "Point"}, reflect.ValueOf(point{X: 4, Y: 5}))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if v.Kind() != host.KindMap {
		t.Fatalf("Kind = %s, want map in legacy mode", v.Kind())
	}
	if got := v.Map().Get("x"); !host.Equal(got, host.Float(4)) {
		t.Errorf("x = %s, want 4", got)
	}
	if got := v.Map().Get("y"); !host.Equal(got, host.Float(5)) {
		t.Errorf("y = %s, want 5", got)
	}
}

// ---------------------------------------------------------------------------
// Handle Codec Tests
// ---------------------------------------------------------------------------

func TestExclusiveHandleCodec(t *testing.T) {
	m, realm := newTestMapper(Options{})
	hRef := decl.TypeRef{Kind: decl.KindHandle, Owner: decl.Exclusive, Class: "Point"}

	var empty *point
	v, err := m.Encode(hRef, reflect.ValueOf(empty))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !v.IsNil() {
		t.Error("empty handle should encode as no value")
	}

	p := &point{X: 7}
	v, err = m.Encode(hRef, reflect.ValueOf(p))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	_, ptr, err := realm.NativeOf(v)
	if err != nil {
		t.Fatal(err)
	}
	if ptr.Interface().(*point) != p {
		t.Error("handle read should expose the same native pointer")
	}

	slot := &point{X: 1}
	dst := reflect.ValueOf(&slot).Elem()
	if err := m.Decode(hRef, host.Nil, dst); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if slot != nil {
		t.Error("no value should clear the handle")
	}

	if err := m.Decode(hRef, v, dst); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if slot == p {
		t.Error("decoded handle must own a fresh copy, not the source pointer")
	}
	if slot == nil || slot.X != 7 {
		t.Errorf("decoded handle state = %+v, want X=7", slot)
	}
}

func TestSharedHandleCodec(t *testing.T) {
	m, realm := newTestMapper(Options{})
	sRef := decl.TypeRef{Kind: decl.KindHandle, Owner: decl.Shared, Class: "Point"}

	dropped := 0
	sh := handle.NewShared(&point{X: 3}, func(*point) { dropped++ })

	v, err := m.Encode(sRef, reflect.ValueOf(sh))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if sh.Count() != 2 {
		t.Fatalf("count after encode = %d, want 2", sh.Count())
	}

	var slot handle.Shared[point]
	dst := reflect.ValueOf(&slot).Elem()
	if err := m.Decode(sRef, v, dst); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if slot.Get() != sh.Get() {
		t.Error("decoding a share-backed object should share the pointee")
	}
	if sh.Count() != 3 {
		t.Errorf("count after decode = %d, want 3", sh.Count())
	}

	// Storing no value gives up the slot's reference.
	if err := m.Decode(sRef, host.Nil, dst); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !slot.IsNil() {
		t.Error("no value should clear the slot")
	}
	if sh.Count() != 2 {
		t.Errorf("count after clearing = %d, want 2", sh.Count())
	}

	sh.Release()
	if dropped != 0 {
		t.Fatal("dropped while the bound object still holds a reference")
	}
	realm.SharedOf(v).Release()
	if dropped != 1 {
		t.Errorf("dropped = %d, want exactly one drop", dropped)
	}
}

func TestSharedHandleAdoptsCopies(t *testing.T) {
	m, _ := newTestMapper(Options{})
	sRef := decl.TypeRef{Kind: decl.KindHandle, Owner: decl.Shared, Class: "Point"}

	mp := host.NewMap()
	mp.Set("x", host.Float(11))
	var slot handle.Shared[point]
	dst := reflect.ValueOf(&slot).Elem()
	if err := m.Decode(sRef, host.FromMap(mp), dst); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if slot.IsNil() || slot.Get().X != 11 {
		t.Fatalf("adopted share = %+v", slot.Get())
	}
	if slot.Count() != 1 {
		t.Errorf("fresh share count = %d, want 1", slot.Count())
	}

	// A plain bound object of the class adopts by copy too.
	hRef := decl.TypeRef{Kind: decl.KindHandle, Owner: decl.Exclusive, Class: "Point"}
	p := &point{X: 21}
	v, err := m.Encode(hRef, reflect.ValueOf(p))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := m.Decode(sRef, v, dst); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if slot.Get() == p {
		t.Error("adopting a non-shared object must copy, not alias")
	}
	if slot.Get().X != 21 {
		t.Errorf("adopted state = %+v", slot.Get())
	}
}

// ---------------------------------------------------------------------------
// Callback Codec Tests
// ---------------------------------------------------------------------------

func TestNativeFuncInvocableFromHost(t *testing.T) {
	m, _ := newTestMapper(Options{})
	fRef := decl.TypeRef{
		Kind:   decl.KindFunc,
		Params: []decl.TypeRef{{Kind: decl.KindInt}},
		Result: &decl.TypeRef{Kind: decl.KindInt},
	}

	double := func(n int64) int64 { return n * 2 }
	v, err := m.Encode(fRef, reflect.ValueOf(double))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if v.Kind() != host.KindFunc {
		t.Fatalf("Kind = %s, want func", v.Kind())
	}

	got, err := v.Func().Invoke(host.Int(21))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !host.Equal(got, host.Int(42)) {
		t.Errorf("Invoke = %s, want 42", got)
	}

	if _, err := v.Func().Invoke(); err == nil {
		t.Error("arity mismatch should be rejected")
	}
	if _, err := v.Func().Invoke(host.Text("x")); err == nil {
		t.Error("unmarshalable argument should be rejected")
	}
}

func TestNativeFuncErrorResult(t *testing.T) {
	m, _ := newTestMapper(Options{})
	fRef := decl.TypeRef{
		Kind:      decl.KindFunc,
		Params:    []decl.TypeRef{{Kind: decl.KindText}},
		ErrResult: true,
	}

	check := func(s string) error {
		if s == "" {
			return errors.New("empty input")
		}
		return nil
	}
	v, err := m.Encode(fRef, reflect.ValueOf(check))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if _, err := v.Func().Invoke(host.Text("ok")); err != nil {
		t.Errorf("Invoke failed: %v", err)
	}
	if _, err := v.Func().Invoke(host.Text("")); err == nil || err.Error() != "empty input" {
		t.Errorf("err = %v, want the native error verbatim", err)
	}
}

func TestNilFuncEncodesAsNoValue(t *testing.T) {
	m, _ := newTestMapper(Options{})
	fRef := decl.TypeRef{Kind: decl.KindFunc}
	var fn func()
	v, err := m.Encode(fRef, reflect.ValueOf(fn))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !v.IsNil() {
		t.Error("nil func should encode as no value")
	}
}

func TestHostCallableStoredAndCleared(t *testing.T) {
	m, _ := newTestMapper(Options{})
	fRef := decl.TypeRef{
		Kind:   decl.KindFunc,
		Params: []decl.TypeRef{{Kind: decl.KindFloat}},
		Result: &decl.TypeRef{Kind: decl.KindFloat},
	}

	calls := 0
	inc := host.CallableFunc(func(args ...host.Value) (host.Value, error) {
		calls++
		return host.Float(args[0].Float() + 1), nil
	})

	var slot func(float64) float64
	dst := reflect.ValueOf(&slot).Elem()
	if err := m.Decode(fRef, host.Func(inc), dst); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := slot(2); got != 3 {
		t.Errorf("slot(2) = %v, want 3", got)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	// Storing no value clears the slot.
	if err := m.Decode(fRef, host.Nil, dst); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if slot != nil {
		t.Error("no value should clear the callback slot")
	}
}

func TestHostCallableErrorFaultsTheFrame(t *testing.T) {
	m, _ := newTestMapper(Options{})
	hostErr := errors.New("listener refused")
	refuse := host.CallableFunc(func(...host.Value) (host.Value, error) {
		return host.Nil, hostErr
	})

	var slot func()
	if err := m.Decode(decl.TypeRef{Kind: decl.KindFunc}, host.Func(refuse), reflect.ValueOf(&slot).Elem()); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	fr := NewFrame("notify")
	fr.Advance(StateArgsMarshaled)
	_, err := fr.CallNative(reflect.ValueOf(func() { slot() }), nil, false)

	var ce *CallbackError
	if !errors.As(err, &ce) {
		t.Fatalf("fault = %T, want *CallbackError", err)
	}
	if !errors.Is(err, hostErr) {
		t.Error("CallbackError should unwrap to the host error")
	}
}

func TestHostCallableErrorReturnedWhenDeclared(t *testing.T) {
	m, _ := newTestMapper(Options{})
	refuse := host.CallableFunc(func(...host.Value) (host.Value, error) {
		return host.Nil, errors.New("listener refused")
	})

	var slot func() error
	fRef := decl.TypeRef{Kind: decl.KindFunc, ErrResult: true}
	if err := m.Decode(fRef, host.Func(refuse), reflect.ValueOf(&slot).Elem()); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	err := slot()
	if err == nil || err.Error() != "listener refused" {
		t.Errorf("err = %v, want the host error through the declared return", err)
	}
}

func TestHostCallableBadResultIsMarshalFault(t *testing.T) {
	m, _ := newTestMapper(Options{})
	bad := host.CallableFunc(func(...host.Value) (host.Value, error) {
		return host.Text("oops"), nil
	})

	var slot func() int64
	fRef := decl.TypeRef{Kind: decl.KindFunc, Result: &decl.TypeRef{Kind: decl.KindInt}}
	if err := m.Decode(fRef, host.Func(bad), reflect.ValueOf(&slot).Elem()); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	fr := NewFrame("transform")
	fr.Advance(StateArgsMarshaled)
	_, err := fr.CallNative(reflect.ValueOf(func() { _ = slot() }), nil, false)

	var me *MarshalError
	if !errors.As(err, &me) {
		t.Fatalf("fault = %T, want *MarshalError", err)
	}
	if me.Symbol != "transform" {
		t.Errorf("Symbol = %q, want the outer call's symbol", me.Symbol)
	}
}
