// Package kinds loads kind descriptors from YAML files.
//
// A descriptor file declares one kind:
//
//	name: user
//	table: users
//	fields:
//	  - name: email
//	    type: text
//	    not_null: true
//	    unique: true
//	    validate: email
//	indexes:
//	  - name: idx_users_email
//	    columns: [email]
package kinds

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/possum/pkg/types"
	"github.com/mesh-intelligence/possum/pkg/validate"
)

type fieldFile struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	NotNull  bool   `yaml:"not_null"`
	Unique   bool   `yaml:"unique"`
	Validate string `yaml:"validate"`
}

type indexFile struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
}

type kindFile struct {
	Name    string      `yaml:"name"`
	Table   string      `yaml:"table"`
	Fields  []fieldFile `yaml:"fields"`
	Indexes []indexFile `yaml:"indexes"`
}

// Parse decodes and validates one descriptor.
func Parse(data []byte) (*types.Kind, error) {
	var kf kindFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decoding kind descriptor"), types.ErrInvalidKind)
	}

	k := &types.Kind{Name: kf.Name, Table: kf.Table}
	for _, ff := range kf.Fields {
		st, err := types.ParseStorageType(ff.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", ff.Name)
		}
		f := types.Field{Name: ff.Name, Type: st}
		if ff.NotNull {
			f.Constraints |= types.NotNull
		}
		if ff.Unique {
			f.Constraints |= types.Unique
		}
		if ff.Validate != "" {
			v, err := validate.Named(ff.Validate)
			if err != nil {
				return nil, errors.Mark(errors.Wrapf(err, "field %s", ff.Name), types.ErrInvalidKind)
			}
			f.Validator = v
		}
		k.Fields = append(k.Fields, f)
	}
	for _, ix := range kf.Indexes {
		k.Indexes = append(k.Indexes, types.Index{Name: ix.Name, Columns: ix.Columns, Unique: ix.Unique})
	}

	if err := k.Validate(); err != nil {
		return nil, err
	}
	return k, nil
}

// LoadFile reads one descriptor file.
func LoadFile(path string) (*types.Kind, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	k, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", filepath.Base(path))
	}
	return k, nil
}

// Set is a collection of kinds keyed by name.
type Set struct {
	byName map[string]*types.Kind
}

// NewSet builds a Set. Two kinds with the same name or table are rejected.
func NewSet(ks ...*types.Kind) (*Set, error) {
	s := &Set{byName: make(map[string]*types.Kind, len(ks))}
	tables := make(map[string]string, len(ks))
	for _, k := range ks {
		if _, dup := s.byName[k.Name]; dup {
			return nil, errors.Wrapf(types.ErrInvalidKind, "kind %s declared twice", k.Name)
		}
		if other, dup := tables[k.TableName()]; dup {
			return nil, errors.Wrapf(types.ErrInvalidKind, "kinds %s and %s share table %s", other, k.Name, k.TableName())
		}
		s.byName[k.Name] = k
		tables[k.TableName()] = k.Name
	}
	return s, nil
}

// LoadDir reads every *.yaml and *.yml file in dir. A missing directory
// yields an empty Set.
func LoadDir(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return NewSet()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", dir)
	}

	var ks []*types.Kind
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		k, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		ks = append(ks, k)
	}
	return NewSet(ks...)
}

// Get returns the kind with the given name.
func (s *Set) Get(name string) (*types.Kind, error) {
	k, ok := s.byName[name]
	if !ok {
		return nil, errors.Wrapf(types.ErrInvalidKind, "unknown kind %q", name)
	}
	return k, nil
}

// Names lists the kind names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Kinds returns the kinds sorted by name.
func (s *Set) Kinds() []*types.Kind {
	out := make([]*types.Kind, 0, len(s.byName))
	for _, n := range s.Names() {
		out = append(out, s.byName[n])
	}
	return out
}
