/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package query

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/uptrace/bun"

	"github.com/tomoncle/testspec/database"
)

type FieldKind int

const (
	KindOther FieldKind = iota
	KindText
	KindNumber
	KindBool
	KindTime
)

// Field is one queryable column of an entity.
type Field struct {
	Name   string
	Column string
	Kind   FieldKind
}

// Descriptor is the static field table of one entity type. It is built once,
// at startup, and shared read-only by every query over that type.
type Descriptor struct {
	entity    string
	table     string
	modelType reflect.Type
	pk        string
	fields    map[string]Field
	relations map[string]struct{}
}

var timeType = reflect.TypeOf(time.Time{})

// Describe builds the descriptor of a bun model from the table metadata bun
// derives from its struct tags. Fields are addressed by column name and
// relations by the name of their struct field.
func Describe(db *bun.DB, model any) (*Descriptor, error) {
	typ := reflect.TypeOf(model)
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: describe: %T is not a struct model", database.ErrInternal, model)
	}
	table := db.Table(typ)
	if len(table.PKs) != 1 {
		return nil, fmt.Errorf("%w: describe %s: exactly one primary key column is required, got %d",
			database.ErrInternal, typ.Name(), len(table.PKs))
	}

	d := &Descriptor{
		entity:    typ.Name(),
		table:     table.Name,
		modelType: typ,
		pk:        table.PKs[0].Name,
		fields:    make(map[string]Field, len(table.Fields)),
		relations: make(map[string]struct{}, len(table.Relations)),
	}
	for _, f := range table.Fields {
		d.fields[f.Name] = Field{Name: f.Name, Column: f.Name, Kind: kindOf(f.IndirectType)}
	}
	for name := range table.Relations {
		d.relations[name] = struct{}{}
	}
	return d, nil
}

// MustDescribe is Describe for package-level initialisation.
func MustDescribe(db *bun.DB, model any) *Descriptor {
	d, err := Describe(db, model)
	if err != nil {
		panic(err)
	}
	return d
}

func kindOf(t reflect.Type) FieldKind {
	if t == timeType {
		return KindTime
	}
	switch t.Kind() {
	case reflect.String:
		return KindText
	case reflect.Bool:
		return KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindNumber
	default:
		return KindOther
	}
}

func (d *Descriptor) Entity() string { return d.entity }

func (d *Descriptor) Table() string { return d.table }

func (d *Descriptor) PrimaryKey() string { return d.pk }

func (d *Descriptor) ModelType() reflect.Type { return d.modelType }

// Field looks a field up by name. A miss is reported, never raised.
func (d *Descriptor) Field(name string) (Field, bool) {
	f, ok := d.fields[name]
	return f, ok
}

func (d *Descriptor) HasRelation(name string) bool {
	_, ok := d.relations[name]
	return ok
}

// FieldNames returns the known field names in sorted order.
func (d *Descriptor) FieldNames() []string {
	names := make([]string, 0, len(d.fields))
	for name := range d.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Descriptor) newModel() any {
	return reflect.New(d.modelType).Interface()
}
