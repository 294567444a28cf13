package complecs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// TypeTable maps the type names used in schema files to Go types. Go cannot
// build a generic storage from a reflect.Type, so every entry carries the
// constructor for its storage.
type TypeTable struct {
	entries map[string]typeEntry
}

type typeEntry struct {
	typ       reflect.Type
	newColumn func(kind string, capacity int) column
}

// NewTypeTable returns an empty table.
func NewTypeTable() *TypeTable {
	return &TypeTable{entries: make(map[string]typeEntry)}
}

// DefaultTypes returns a table holding Go's basic types under their Go names,
// plus "[]byte" and "bytes".
func DefaultTypes() *TypeTable {
	t := NewTypeTable()
	RegisterType[string](t, "string")
	RegisterType[bool](t, "bool")
	RegisterType[int](t, "int")
	RegisterType[int8](t, "int8")
	RegisterType[int16](t, "int16")
	RegisterType[int32](t, "int32")
	RegisterType[int64](t, "int64")
	RegisterType[uint](t, "uint")
	RegisterType[uint8](t, "uint8")
	RegisterType[uint16](t, "uint16")
	RegisterType[uint32](t, "uint32")
	RegisterType[uint64](t, "uint64")
	RegisterType[float32](t, "float32")
	RegisterType[float64](t, "float64")
	RegisterType[[]byte](t, "[]byte")
	RegisterType[[]byte](t, "bytes")
	return t
}

// RegisterType makes T available to schema files under name, replacing any
// previous entry.
func RegisterType[T any](t *TypeTable, name string) {
	if t.entries == nil {
		t.entries = make(map[string]typeEntry)
	}
	t.entries[name] = typeEntry{
		typ: reflect.TypeFor[T](),
		newColumn: func(kind string, capacity int) column {
			return newStorage[T](kind, capacity)
		},
	}
}

// Lookup returns the Go type registered under name.
func (t *TypeTable) Lookup(name string) (reflect.Type, bool) {
	e, ok := t.entries[name]
	return e.typ, ok
}

type schemaFile struct {
	Components []componentDecl `toml:"component" yaml:"component"`
	Processes  []processDecl   `toml:"process" yaml:"process"`
	Entities   []entityDecl    `toml:"entity" yaml:"entity"`
	Schedule   []stepDecl      `toml:"schedule" yaml:"schedule"`
}

type componentDecl struct {
	Name string `toml:"name" yaml:"name"`
	Type string `toml:"type" yaml:"type"`
}

type processDecl struct {
	Name string   `toml:"name" yaml:"name"`
	Mut  []string `toml:"mut" yaml:"mut"`
	Ref  []string `toml:"ref" yaml:"ref"`
	Ext  []string `toml:"ext" yaml:"ext"`
}

type entityDecl struct {
	Name       string   `toml:"name" yaml:"name"`
	Components []string `toml:"components" yaml:"components"`
	Processes  []string `toml:"processes" yaml:"processes"`
}

type stepDecl struct {
	Process string `toml:"process" yaml:"process"`
	Args    []any  `toml:"args" yaml:"args"`
}

// LoadSchema reads a schema file. The format follows the extension: .toml,
// .yaml or .yml.
func LoadSchema(path string, types *TypeTable) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	var s *Schema
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		s, err = DecodeSchemaTOML(bytes.NewReader(data), types)
	case ".yaml", ".yml":
		s, err = DecodeSchemaYAML(bytes.NewReader(data), types)
	default:
		return nil, fmt.Errorf("read schema %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	return s, nil
}

// DecodeSchemaTOML decodes a TOML schema. Processes are declared without
// bodies; attach them with Schema.Bind before building a World.
func DecodeSchemaTOML(r io.Reader, types *TypeTable) (*Schema, error) {
	var f schemaFile
	md, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, fmt.Errorf("decode toml: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode toml: unknown key %q", undecoded[0].String())
	}
	return f.schema(types)
}

// DecodeSchemaYAML decodes a YAML schema. Unknown fields are rejected.
func DecodeSchemaYAML(r io.Reader, types *TypeTable) (*Schema, error) {
	var f schemaFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return f.schema(types)
}

// schema turns the decoded file into a Schema. Unknown type names are schema
// violations; everything else is left to Validate.
func (f *schemaFile) schema(types *TypeTable) (*Schema, error) {
	if types == nil {
		types = DefaultTypes()
	}
	var vs violations
	s := NewSchema()
	for _, c := range f.Components {
		e, ok := types.entries[c.Type]
		if !ok {
			vs.add("component", c.Name, "unknown type %q", c.Type)
			continue
		}
		s.components = append(s.components, ComponentKind{Name: c.Name, Type: e.typ, newColumn: e.newColumn})
	}
	declared := make(map[string][]reflect.Type, len(f.Processes))
	for _, p := range f.Processes {
		ext := make([]reflect.Type, 0, len(p.Ext))
		for _, name := range p.Ext {
			e, ok := types.entries[name]
			if !ok {
				vs.add("process", p.Name, "unknown external type %q", name)
				continue
			}
			ext = append(ext, e.typ)
		}
		declared[p.Name] = ext
		s.AddProcess(ProcessKind{Name: p.Name, Mutable: p.Mut, Immutable: p.Ref, External: ext})
	}
	for _, e := range f.Entities {
		s.AddEntity(EntityKind{Name: e.Name, Components: e.Components, Processes: e.Processes})
	}
	for _, st := range f.Schedule {
		args := st.Args
		if ext, ok := declared[st.Process]; ok && len(ext) == len(args) {
			args = make([]any, len(st.Args))
			for i, a := range st.Args {
				args[i] = convertArg(a, ext[i])
			}
		}
		s.Schedule(Step{Process: st.Process, Args: args})
	}
	if len(vs) > 0 {
		return nil, &SchemaError{Violations: vs}
	}
	return s, nil
}

// convertArg converts a decoded scalar to the declared external type. TOML
// and YAML decode every integer as int64 or int and every float as float64.
// Values that would not survive the conversion unchanged (overflow, a
// negative number for an unsigned type, a fraction for an integer type) are
// returned as decoded for Validate to reject.
func convertArg(v any, t reflect.Type) any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Type() == t {
		return v
	}
	if rv.Kind() == reflect.String && t.Kind() == reflect.String {
		return rv.Convert(t).Interface()
	}
	if !isNumber(rv.Kind()) || !isNumber(t.Kind()) || !fits(rv, t) {
		return v
	}
	return rv.Convert(t).Interface()
}

// fits reports whether the number rv converts to t without losing its value.
func fits(rv reflect.Value, t reflect.Type) bool {
	switch {
	case rv.CanInt():
		n := rv.Int()
		switch {
		case t.Kind() >= reflect.Int && t.Kind() <= reflect.Int64:
			return !t.OverflowInt(n)
		case t.Kind() >= reflect.Uint && t.Kind() <= reflect.Uint64:
			return n >= 0 && !t.OverflowUint(uint64(n))
		default:
			return !t.OverflowFloat(float64(n))
		}
	case rv.CanUint():
		n := rv.Uint()
		switch {
		case t.Kind() >= reflect.Int && t.Kind() <= reflect.Int64:
			return n <= math.MaxInt64 && !t.OverflowInt(int64(n))
		case t.Kind() >= reflect.Uint && t.Kind() <= reflect.Uint64:
			return !t.OverflowUint(n)
		default:
			return !t.OverflowFloat(float64(n))
		}
	default:
		f := rv.Float()
		switch {
		case t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64:
			return !t.OverflowFloat(f)
		case f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f):
			return false
		case t.Kind() >= reflect.Int && t.Kind() <= reflect.Int64:
			return f >= math.MinInt64 && f < math.MaxInt64 && !t.OverflowInt(int64(f))
		default:
			return f >= 0 && f < math.MaxUint64 && !t.OverflowUint(uint64(f))
		}
	}
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
