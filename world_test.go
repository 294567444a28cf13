package complecs_test

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Machtan/complecs"
)

// --- Test Schema ---

// playerSchema declares the player simulation. Text produced by process
// bodies is appended to out.
func playerSchema(out *[]string) *complecs.Schema {
	s := complecs.NewSchema()
	complecs.RegisterComponent[string](s, "name")
	complecs.RegisterComponent[uint32](s, "age")
	s.AddProcess(complecs.ProcessKind{
		Name:      "print_info",
		Immutable: []string{"name", "age"},
		Body: func(r *complecs.Row) {
			*out = append(*out, fmt.Sprintf("%s is %d year(s) old", complecs.Ref[string](r, 0), complecs.Ref[uint32](r, 1)))
		},
	})
	s.AddProcess(complecs.ProcessKind{
		Name:    "double_age",
		Mutable: []string{"age"},
		Body: func(r *complecs.Row) {
			*complecs.Mut[uint32](r, 0) *= 2
		},
	})
	s.AddProcess(complecs.ProcessKind{
		Name:      "print_with_last_name",
		Immutable: []string{"name"},
		External:  []reflect.Type{complecs.TypeOf[string]()},
		Body: func(r *complecs.Row) {
			*out = append(*out, fmt.Sprintf("Name: %s %s", complecs.Ref[string](r, 0), complecs.Ext[string](r, 0)))
		},
	})
	s.AddEntity(complecs.EntityKind{
		Name:       "player",
		Components: []string{"name", "age"},
		Processes:  []string{"print_info", "double_age", "print_with_last_name"},
	})
	s.Schedule(
		complecs.Step{Process: "print_info"},
		complecs.Step{Process: "double_age"},
		complecs.Step{Process: "print_with_last_name", Args: []any{"Erroinen"}},
	)
	return s
}

func setupWorld(t testing.TB, opts ...complecs.Option) (*complecs.World, *[]string) {
	t.Helper()
	out := new([]string)
	w, err := complecs.NewWorld(playerSchema(out), opts...)
	if err != nil {
		t.Fatalf("NewWorld failed: %v", err)
	}
	return w, out
}

func mustAdd(t testing.TB, w *complecs.World, kind string, values ...any) *complecs.EntityRecord {
	t.Helper()
	rec, err := w.Add(kind, values...)
	if err != nil {
		t.Fatalf("Add(%s) failed: %v", kind, err)
	}
	return rec
}

func expectPanic(t *testing.T, fn func()) any {
	t.Helper()
	var v any
	func() {
		defer func() { v = recover() }()
		fn()
	}()
	if v == nil {
		t.Error("expected panic")
	}
	return v
}

// --- Tests ---

// go test -run ^TestDoubleAge$ . -count 1
func TestDoubleAge(t *testing.T) {
	w, _ := setupWorld(t)
	rec := mustAdd(t, w, "player", "Jakob", uint32(22))

	for _, want := range []uint32{44, 88} {
		w.Run("double_age")
		got, err := complecs.Get[uint32](w, rec, "age")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != want {
			t.Errorf("expected age %d, got %d", want, got)
		}
	}
}

// go test -run ^TestExternalArgument$ . -count 1
func TestExternalArgument(t *testing.T) {
	w, out := setupWorld(t)
	mustAdd(t, w, "player", "Jakob", uint32(22))

	for range 3 {
		*out = (*out)[:0]
		w.Run("double_age")
		w.Run("print_with_last_name", "Erroinen")
		if !slices.Equal(*out, []string{"Name: Jakob Erroinen"}) {
			t.Errorf("expected [Name: Jakob Erroinen], got %v", *out)
		}
	}
}

// go test -run ^TestTick$ . -count 1
func TestTick(t *testing.T) {
	w, out := setupWorld(t)
	mustAdd(t, w, "player", "Jakob", uint32(22))
	mustAdd(t, w, "player", "test", uint32(9001))

	order := w.TickOrder()
	if !slices.Equal(order, []string{"print_info", "double_age", "print_with_last_name"}) {
		t.Errorf("unexpected tick order %v", order)
	}

	w.Tick()
	w.Tick()
	want := []string{
		"Jakob is 22 year(s) old",
		"test is 9001 year(s) old",
		"Name: Jakob Erroinen",
		"Name: test Erroinen",
		"Jakob is 44 year(s) old",
		"test is 18002 year(s) old",
		"Name: Jakob Erroinen",
		"Name: test Erroinen",
	}
	if !slices.Equal(*out, want) {
		t.Errorf("expected\n%v\ngot\n%v", want, *out)
	}
}

// go test -run ^TestRowOrder$ . -count 1
func TestRowOrder(t *testing.T) {
	w, out := setupWorld(t)
	a := mustAdd(t, w, "player", "A", uint32(1))
	mustAdd(t, w, "player", "B", uint32(2))

	for range 5 {
		*out = (*out)[:0]
		w.Run("print_with_last_name", "x")
		if !slices.Equal(*out, []string{"Name: A x", "Name: B x"}) {
			t.Fatalf("expected A before B, got %v", *out)
		}
	}

	// A removed and re-added goes to the back, even though it reuses slots.
	if err := w.Remove(a); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	mustAdd(t, w, "player", "A", uint32(1))
	*out = (*out)[:0]
	w.Run("print_with_last_name", "x")
	if !slices.Equal(*out, []string{"Name: B x", "Name: A x"}) {
		t.Errorf("expected B before A, got %v", *out)
	}
}

func TestRowIndex(t *testing.T) {
	s := complecs.NewSchema()
	complecs.RegisterComponent[int](s, "n")
	var seen []int
	s.AddProcess(complecs.ProcessKind{
		Name:    "index",
		Mutable: []string{"n"},
		Body: func(r *complecs.Row) {
			seen = append(seen, r.Index())
			if r.Process() != "index" {
				t.Errorf("unexpected process %q", r.Process())
			}
		},
	})
	s.AddEntity(complecs.EntityKind{Name: "e", Components: []string{"n"}, Processes: []string{"index"}})
	w, err := complecs.NewWorld(s)
	if err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		mustAdd(t, w, "e", i)
	}
	w.Run("index")
	if !slices.Equal(seen, []int{0, 1, 2}) {
		t.Errorf("expected indexes 0..2, got %v", seen)
	}
}

// go test -run ^TestAddRemoveRoundTrip$ . -count 1
func TestAddRemoveRoundTrip(t *testing.T) {
	w, _ := setupWorld(t)
	// Leave some history behind so free lists are not empty.
	keep := mustAdd(t, w, "player", "keep", uint32(1))
	gone := mustAdd(t, w, "player", "gone", uint32(2))
	mustAdd(t, w, "player", "last", uint32(3))
	if err := w.Remove(gone); err != nil {
		t.Fatal(err)
	}

	type snapshot map[string]complecs.StorageStats
	take := func() snapshot {
		s := snapshot{}
		for _, c := range []string{"name", "age"} {
			st, err := w.ComponentStats(c)
			if err != nil {
				t.Fatal(err)
			}
			s["component "+c] = st
		}
		for _, p := range []string{"print_info", "double_age", "print_with_last_name"} {
			table, err := w.Membership(p)
			if err != nil {
				t.Fatal(err)
			}
			s["process "+p] = table.Stats()
		}
		reg, err := w.Entities("player")
		if err != nil {
			t.Fatal(err)
		}
		s["entity player"] = reg.Stats()
		return s
	}

	before := take()
	rec := mustAdd(t, w, "player", "temp", uint32(4))
	if err := w.Remove(rec); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	after := take()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("expected %v, got %v", before, after)
	}
	if rec.State() != complecs.Removed {
		t.Errorf("expected removed record, got %s", rec.State())
	}
	if keep.State() != complecs.Registered {
		t.Errorf("untouched record changed state to %s", keep.State())
	}
}

func TestRemoveTwice(t *testing.T) {
	w, _ := setupWorld(t)
	rec := mustAdd(t, w, "player", "Jakob", uint32(22))
	if err := w.Remove(rec); err != nil {
		t.Fatal(err)
	}
	if err := w.Remove(rec); !errors.Is(err, complecs.ErrInvalidHandle) {
		t.Errorf("expected ErrInvalidHandle, got %v", err)
	}
	if err := w.Remove(nil); !errors.Is(err, complecs.ErrInvalidHandle) {
		t.Errorf("expected ErrInvalidHandle for nil record, got %v", err)
	}
	if _, err := complecs.Get[uint32](w, rec, "age"); !errors.Is(err, complecs.ErrInvalidHandle) {
		t.Errorf("expected ErrInvalidHandle reading a removed record, got %v", err)
	}
	if w.Err() != nil {
		t.Errorf("removing twice must not poison the world: %v", w.Err())
	}
}

func TestRemoveFromOtherWorld(t *testing.T) {
	w1, _ := setupWorld(t)
	w2, _ := setupWorld(t)
	rec := mustAdd(t, w1, "player", "Jakob", uint32(22))
	if err := w2.Remove(rec); !errors.Is(err, complecs.ErrInvalidHandle) {
		t.Errorf("expected ErrInvalidHandle, got %v", err)
	}
}

// go test -run ^TestAddAtomic$ . -count 1
func TestAddAtomic(t *testing.T) {
	w, _ := setupWorld(t)
	nameStats, _ := w.ComponentStats("name")
	table, _ := w.Membership("print_info")

	t.Run("type mismatch", func(t *testing.T) {
		_, err := w.Add("player", "Jakob", 22) // int, not uint32
		if !errors.Is(err, complecs.ErrTypeMismatch) {
			t.Fatalf("expected ErrTypeMismatch, got %v", err)
		}
		var terr *complecs.TypeError
		if !errors.As(err, &terr) || terr.Kind != "age" {
			t.Errorf("expected a TypeError for age, got %v", err)
		}
	})

	t.Run("missing value", func(t *testing.T) {
		if _, err := w.Add("player", "Jakob"); !errors.Is(err, complecs.ErrMissingValue) {
			t.Errorf("expected ErrMissingValue, got %v", err)
		}
	})

	t.Run("too many values", func(t *testing.T) {
		if _, err := w.Add("player", "Jakob", uint32(1), 3); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		if _, err := w.Add("monster"); !errors.Is(err, complecs.ErrUnknownKind) {
			t.Errorf("expected ErrUnknownKind, got %v", err)
		}
	})

	if got, _ := w.ComponentStats("name"); got != nameStats {
		t.Errorf("failed adds touched the name storage: %+v", got)
	}
	if table.Len() != 0 {
		t.Errorf("failed adds subscribed %d rows", table.Len())
	}
}

func TestRecordHandles(t *testing.T) {
	w, _ := setupWorld(t)
	rec := mustAdd(t, w, "player", "Jakob", uint32(22))

	if rec.Kind() != "player" {
		t.Errorf("expected kind player, got %q", rec.Kind())
	}
	ageH, ok := rec.Component("age")
	if !ok {
		t.Fatal("record has no age handle")
	}
	nameH, _ := rec.Component("name")
	if _, ok := rec.Component("speed"); ok {
		t.Error("record reports an unknown component")
	}

	// print_info takes (name, age), double_age takes (age).
	infoH, _ := rec.Membership("print_info")
	info, _ := w.Membership("print_info")
	row, err := info.Row(infoH)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(row, complecs.ArgTuple{nameH, ageH}) {
		t.Errorf("expected row [name age], got %v", row)
	}
	doubleH, _ := rec.Membership("double_age")
	double, _ := w.Membership("double_age")
	row, _ = double.Row(doubleH)
	if !slices.Equal(row, complecs.ArgTuple{ageH}) {
		t.Errorf("expected row [age], got %v", row)
	}
	if len(rec.Components()) != 2 || len(rec.Memberships()) != 3 {
		t.Errorf("unexpected handle counts %d/%d", len(rec.Components()), len(rec.Memberships()))
	}
}

// go test -run ^TestMutableBeforeImmutable$ . -count 1
func TestMutableBeforeImmutable(t *testing.T) {
	s := complecs.NewSchema()
	complecs.RegisterComponent[float64](s, "pos")
	complecs.RegisterComponent[float64](s, "vel")
	s.AddProcess(complecs.ProcessKind{
		Name:      "move",
		Mutable:   []string{"pos"},
		Immutable: []string{"vel"},
		Body: func(r *complecs.Row) {
			*complecs.Mut[float64](r, 0) += complecs.Ref[float64](r, 0)
		},
	})
	// The entity lists vel first; tuples still put the mutable pos first.
	s.AddEntity(complecs.EntityKind{Name: "body", Components: []string{"vel", "pos"}, Processes: []string{"move"}})
	w, err := complecs.NewWorld(s)
	if err != nil {
		t.Fatal(err)
	}
	rec := mustAdd(t, w, "body", 2.0, 10.0)

	w.Run("move")
	w.Run("move")
	if pos, _ := complecs.Get[float64](w, rec, "pos"); pos != 14 {
		t.Errorf("expected pos 14, got %v", pos)
	}
	if vel, _ := complecs.Get[float64](w, rec, "vel"); vel != 2 {
		t.Errorf("expected vel 2, got %v", vel)
	}
	h, _ := rec.Membership("move")
	table, _ := w.Membership("move")
	row, _ := table.Row(h)
	posH, _ := rec.Component("pos")
	if row[0] != posH {
		t.Errorf("expected pos handle first, got %v", row)
	}
}

// go test -run ^TestConsistencyFailure$ . -count 1
func TestConsistencyFailure(t *testing.T) {
	t.Run("stale membership on remove", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		w, _ := setupWorld(t, complecs.WithLogger(zap.New(core)))
		rec := mustAdd(t, w, "player", "Jakob", uint32(22))

		// Break symmetry behind the record's back.
		h, _ := rec.Membership("double_age")
		table, _ := w.Membership("double_age")
		if err := table.Unsubscribe(h); err != nil {
			t.Fatal(err)
		}

		err := w.Remove(rec)
		if !errors.Is(err, complecs.ErrConsistencyFailure) {
			t.Fatalf("expected ErrConsistencyFailure, got %v", err)
		}
		if !errors.Is(err, complecs.ErrInvalidHandle) {
			t.Errorf("expected the cause to be ErrInvalidHandle, got %v", err)
		}
		if !errors.Is(w.Err(), complecs.ErrConsistencyFailure) {
			t.Errorf("expected the world to be poisoned, got %v", w.Err())
		}
		if logs.FilterMessage("world is inconsistent").Len() != 1 {
			t.Errorf("expected one error log, got %d", logs.Len())
		}
		if _, err := w.Add("player", "x", uint32(1)); !errors.Is(err, complecs.ErrConsistencyFailure) {
			t.Errorf("expected poisoned Add to fail, got %v", err)
		}
		expectPanic(t, func() { w.Run("double_age") })
	})

	t.Run("stale component in run", func(t *testing.T) {
		w, _ := setupWorld(t)
		rec := mustAdd(t, w, "player", "Jakob", uint32(22))

		ages, err := complecs.Components[uint32](w, "age")
		if err != nil {
			t.Fatal(err)
		}
		h, _ := rec.Component("age")
		if _, err := ages.Remove(h); err != nil {
			t.Fatal(err)
		}

		v := expectPanic(t, func() { w.Run("double_age") })
		err, ok := v.(error)
		if !ok || !errors.Is(err, complecs.ErrConsistencyFailure) {
			t.Errorf("expected a consistency failure panic, got %v", v)
		}
		if w.Err() == nil {
			t.Error("expected the world to be poisoned")
		}
	})
}

// go test -run ^TestRunMisuse$ . -count 1
func TestRunMisuse(t *testing.T) {
	w, _ := setupWorld(t)
	mustAdd(t, w, "player", "Jakob", uint32(22))

	expectPanic(t, func() { w.Run("fly") })
	expectPanic(t, func() { w.Run("print_with_last_name") })
	expectPanic(t, func() { w.Run("print_with_last_name", 42) })
	expectPanic(t, func() { w.Run("double_age", "extra") })

	// Nothing above may leave a storage borrowed.
	w.Run("double_age")
	if w.Err() != nil {
		t.Errorf("misuse poisoned the world: %v", w.Err())
	}
}

func TestBodyCannotTouchBorrowedStorage(t *testing.T) {
	s := complecs.NewSchema()
	complecs.RegisterComponent[int](s, "hp")
	var w *complecs.World
	var rec *complecs.EntityRecord
	s.AddProcess(complecs.ProcessKind{
		Name:    "spawn",
		Mutable: []string{"hp"},
		Body: func(r *complecs.Row) {
			w.Add("unit", 1)
		},
	})
	s.AddProcess(complecs.ProcessKind{
		Name:      "despawn",
		Immutable: []string{"hp"},
		Body: func(r *complecs.Row) {
			w.Remove(rec)
		},
	})
	s.AddProcess(complecs.ProcessKind{
		Name:      "nested",
		Immutable: []string{"hp"},
		Body: func(r *complecs.Row) {
			w.Run("spawn")
		},
	})
	s.AddEntity(complecs.EntityKind{Name: "unit", Components: []string{"hp"}, Processes: []string{"spawn", "despawn", "nested"}})
	var err error
	w, err = complecs.NewWorld(s)
	if err != nil {
		t.Fatal(err)
	}
	rec = mustAdd(t, w, "unit", 10)

	for _, p := range []string{"spawn", "despawn", "nested"} {
		t.Run(p, func(t *testing.T) {
			expectPanic(t, func() { w.Run(p) })
		})
	}

	reg, _ := w.Entities("unit")
	if reg.Len() != 1 || rec.State() != complecs.Registered {
		t.Errorf("expected the unit to survive untouched, len %d state %s", reg.Len(), rec.State())
	}
	if err := w.Remove(rec); err != nil {
		t.Errorf("borrows leaked: %v", err)
	}
}

func TestCapabilityQueries(t *testing.T) {
	w, _ := setupWorld(t)

	if !w.HasComponent("name") || w.HasComponent("speed") {
		t.Error("HasComponent mismatch")
	}
	if !w.HasProcess("double_age") || w.HasProcess("fly") {
		t.Error("HasProcess mismatch")
	}
	if !w.HasEntity("player") || w.HasEntity("monster") {
		t.Error("HasEntity mismatch")
	}
	if _, err := complecs.Components[int](w, "age"); !errors.Is(err, complecs.ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
	if _, err := complecs.Components[int](w, "speed"); !errors.Is(err, complecs.ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := w.Membership("fly"); !errors.Is(err, complecs.ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := w.Entities("monster"); !errors.Is(err, complecs.ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := w.ComponentStats("speed"); !errors.Is(err, complecs.ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestGetSetValue(t *testing.T) {
	w, _ := setupWorld(t)
	rec := mustAdd(t, w, "player", "Jakob", uint32(22))

	if err := complecs.Set(w, rec, "name", "Jakob J."); err != nil {
		t.Fatal(err)
	}
	if v, _ := w.Value(rec, "name"); v != "Jakob J." {
		t.Errorf("expected Jakob J., got %v", v)
	}
	if err := w.SetValue(rec, "age", uint32(30)); err != nil {
		t.Fatal(err)
	}
	if age, _ := complecs.Get[uint32](w, rec, "age"); age != 30 {
		t.Errorf("expected 30, got %d", age)
	}
	if err := w.SetValue(rec, "age", "old"); !errors.Is(err, complecs.ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
	if _, err := w.Value(rec, "speed"); !errors.Is(err, complecs.ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestQuery(t *testing.T) {
	w, _ := setupWorld(t)
	for i := range 5 {
		mustAdd(t, w, "player", fmt.Sprint("p", i), uint32(i))
	}
	reg, _ := w.Entities("player")

	// Remove the even-aged players while iterating.
	q := reg.Query()
	for q.Next() {
		rec := q.Record()
		age, _ := complecs.Get[uint32](w, rec, "age")
		if age%2 == 0 {
			if err := w.Remove(rec); err != nil {
				t.Fatal(err)
			}
		}
	}
	if reg.Len() != 2 {
		t.Errorf("expected 2 players left, got %d", reg.Len())
	}

	var names []string
	q.Reset()
	for q.Next() {
		name, _ := complecs.Get[string](w, q.Record(), "name")
		names = append(names, name)
	}
	if !slices.Equal(names, []string{"p1", "p3"}) {
		t.Errorf("expected [p1 p3], got %v", names)
	}
	if recs := reg.Records(); len(recs) != 2 || recs[0].Kind() != "player" {
		t.Errorf("unexpected records %v", recs)
	}
}

func TestEvents(t *testing.T) {
	bus := &complecs.EventBus{}
	var added, removed []string
	var ran []complecs.ProcessRan
	complecs.Subscribe(bus, func(e complecs.EntityAdded) {
		name, _ := e.Record.Component("name")
		added = append(added, e.Kind+"@"+name.String())
	})
	complecs.Subscribe(bus, func(e complecs.EntityRemoved) {
		removed = append(removed, e.Kind)
	})
	complecs.Subscribe(bus, func(e complecs.ProcessRan) {
		ran = append(ran, e)
	})

	w, _ := setupWorld(t, complecs.WithEventBus(bus))
	rec := mustAdd(t, w, "player", "Jakob", uint32(22))
	mustAdd(t, w, "player", "test", uint32(9001))
	w.Run("double_age")
	w.Remove(rec)

	if !slices.Equal(added, []string{"player@0v1", "player@1v1"}) {
		t.Errorf("unexpected added events %v", added)
	}
	if !slices.Equal(removed, []string{"player"}) {
		t.Errorf("unexpected removed events %v", removed)
	}
	if len(ran) != 1 || ran[0] != (complecs.ProcessRan{Process: "double_age", Rows: 2}) {
		t.Errorf("unexpected run events %v", ran)
	}
}

func TestEventHandlerMayMutateWorld(t *testing.T) {
	bus := &complecs.EventBus{}
	w, _ := setupWorld(t, complecs.WithEventBus(bus))
	complecs.Subscribe(bus, func(e complecs.ProcessRan) {
		if e.Process == "double_age" {
			if _, err := w.Add("player", "late", uint32(1)); err != nil {
				t.Errorf("Add from handler failed: %v", err)
			}
		}
	})
	w.Run("double_age")
	reg, _ := w.Entities("player")
	if reg.Len() != 1 {
		t.Errorf("expected 1 player, got %d", reg.Len())
	}
}

func TestWorldLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	w, _ := setupWorld(t, complecs.WithLogger(zap.New(core)), complecs.WithCapacity(16))
	rec := mustAdd(t, w, "player", "Jakob", uint32(22))
	w.Run("double_age")
	w.Remove(rec)

	for _, msg := range []string{"world built", "entity added", "process ran", "entity removed"} {
		if logs.FilterMessage(msg).Len() != 1 {
			t.Errorf("expected one %q entry", msg)
		}
	}
	for _, entry := range logs.All() {
		if entry.ContextMap()["world"] != w.ID().String() {
			t.Errorf("entry %q lacks the world id", entry.Message)
		}
	}
}

func TestZeroParameterProcess(t *testing.T) {
	s := complecs.NewSchema()
	complecs.RegisterComponent[int](s, "n")
	count := 0
	s.AddProcess(complecs.ProcessKind{Name: "count", Body: func(*complecs.Row) { count++ }})
	s.AddEntity(complecs.EntityKind{Name: "a", Components: []string{"n"}, Processes: []string{"count"}})
	s.AddEntity(complecs.EntityKind{Name: "b", Processes: []string{"count"}})
	w, err := complecs.NewWorld(s)
	if err != nil {
		t.Fatal(err)
	}
	mustAdd(t, w, "a", 1)
	mustAdd(t, w, "b")
	w.Run("count")
	if count != 2 {
		t.Errorf("expected 2 rows, got %d", count)
	}
}

type thing struct{ n int }

// go test -run ^TestNilComponentValue$ . -count 1
func TestNilComponentValue(t *testing.T) {
	s := complecs.NewSchema()
	complecs.RegisterComponent[*thing](s, "ptr")
	complecs.RegisterComponent[fmt.Stringer](s, "label")
	complecs.RegisterComponent[int](s, "n")
	s.AddEntity(complecs.EntityKind{Name: "e", Components: []string{"ptr", "label"}})
	s.AddEntity(complecs.EntityKind{Name: "counted", Components: []string{"n"}})
	w, err := complecs.NewWorld(s)
	if err != nil {
		t.Fatal(err)
	}

	rec, err := w.Add("e", nil, nil)
	if err != nil {
		t.Fatalf("Add with nil values failed: %v", err)
	}
	if p, _ := complecs.Get[*thing](w, rec, "ptr"); p != nil {
		t.Errorf("expected a nil pointer, got %v", p)
	}
	if err := w.SetValue(rec, "ptr", &thing{n: 1}); err != nil {
		t.Fatal(err)
	}
	if err := w.SetValue(rec, "ptr", nil); err != nil {
		t.Errorf("SetValue nil failed: %v", err)
	}
	if v, _ := w.Value(rec, "ptr"); v.(*thing) != nil {
		t.Errorf("expected a nil pointer after SetValue, got %v", v)
	}

	if _, err := w.Add("counted", nil); !errors.Is(err, complecs.ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch for nil int, got %v", err)
	}
}

func TestZeroRecord(t *testing.T) {
	var rec complecs.EntityRecord
	if _, ok := rec.Component("name"); ok {
		t.Error("zero record reported a component")
	}
	if _, ok := rec.Membership("double_age"); ok {
		t.Error("zero record reported a membership")
	}
	var nilRec *complecs.EntityRecord
	if _, ok := nilRec.Component("name"); ok {
		t.Error("nil record reported a component")
	}
	if nilRec.State() != complecs.Unregistered {
		t.Errorf("expected unregistered, got %s", nilRec.State())
	}

	w, _ := setupWorld(t)
	if err := w.Remove(&rec); !errors.Is(err, complecs.ErrInvalidHandle) {
		t.Errorf("expected ErrInvalidHandle, got %v", err)
	}
}
