package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"mv-advisor/internal/domain"
)

// Document is the on-disk schema format. JSON documents are accepted as
// well, since JSON is a subset of YAML.
type Document struct {
	Tables      map[string]TableDoc `yaml:"tables"`
	ForeignKeys []ForeignKeyDoc     `yaml:"foreign_keys"`
}

// TableDoc is one entry of Document.Tables.
type TableDoc struct {
	Columns    ColumnsDoc `yaml:"columns"`
	PrimaryKey []string   `yaml:"primary_key,omitempty"`
	Role       string     `yaml:"role,omitempty"`
	RowCount   int64      `yaml:"row_count,omitempty"`
}

// ColumnsDoc accepts either a mapping of column name to {nullable: bool}
// or a plain list of column names (all nullable).
type ColumnsDoc []Column

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *ColumnsDoc) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		for _, n := range names {
			*c = append(*c, Column{Name: n, Nullable: true})
		}
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			name := value.Content[i].Value
			col := Column{Name: name, Nullable: true}
			info := value.Content[i+1]
			if info.Kind == yaml.MappingNode {
				var meta struct {
					Nullable *bool `yaml:"nullable"`
				}
				if err := info.Decode(&meta); err != nil {
					return fmt.Errorf("column %s: %w", name, err)
				}
				if meta.Nullable != nil {
					col.Nullable = *meta.Nullable
				}
			}
			*c = append(*c, col)
		}
		return nil
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			return nil
		}
	}
	return fmt.Errorf("line %d: columns must be a mapping or a list", value.Line)
}

// MarshalYAML implements yaml.Marshaler, always emitting the mapping form.
func (c ColumnsDoc) MarshalYAML() (interface{}, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, col := range c {
		nullable := "true"
		if !col.Nullable {
			nullable = "false"
		}
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: col.Name},
			&yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
				{Kind: yaml.ScalarNode, Value: "nullable"},
				{Kind: yaml.ScalarNode, Tag: "!!bool", Value: nullable},
			}},
		)
	}
	return n, nil
}

// ForeignKeyDoc is one entry of Document.ForeignKeys. Either the plural
// column lists or the singular column fields may be used.
type ForeignKeyDoc struct {
	FromTable   string   `yaml:"from_table"`
	FromColumns []string `yaml:"from_columns,omitempty"`
	FromColumn  string   `yaml:"from_column,omitempty"`
	ToTable     string   `yaml:"to_table"`
	ToColumns   []string `yaml:"to_columns,omitempty"`
	ToColumn    string   `yaml:"to_column,omitempty"`
	Enforced    *bool    `yaml:"enforced,omitempty"`
	Recommended bool     `yaml:"recommended,omitempty"`
}

// LoadOptions configures document decoding.
type LoadOptions struct {
	AllowUnknownFields bool
}

// LoadFile reads and builds a Schema from a YAML or JSON schema document.
func LoadFile(path string, opts LoadOptions) (*Schema, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	s, err := Parse(data, opts)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a schema document and builds a Schema.
func Parse(data []byte, opts LoadOptions) (*Schema, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(!opts.AllowUnknownFields)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.ErrValidation("parse: %v", err)
	}
	return doc.Build()
}

// Build converts the document into a Schema.
func (d *Document) Build() (*Schema, error) {
	names := make([]string, 0, len(d.Tables))
	for name := range d.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		td := d.Tables[name]
		tables = append(tables, Table{
			Name:       name,
			Columns:    []Column(td.Columns),
			PrimaryKey: td.PrimaryKey,
			Role:       Role(td.Role),
			RowCount:   td.RowCount,
		})
	}

	fks := make([]ForeignKey, 0, len(d.ForeignKeys))
	for _, fd := range d.ForeignKeys {
		from := fd.FromColumns
		if len(from) == 0 && fd.FromColumn != "" {
			from = []string{fd.FromColumn}
		}
		to := fd.ToColumns
		if len(to) == 0 && fd.ToColumn != "" {
			to = []string{fd.ToColumn}
		}
		enforced := true
		if fd.Enforced != nil {
			enforced = *fd.Enforced
		}
		fks = append(fks, ForeignKey{
			FromTable:   fd.FromTable,
			FromColumns: from,
			ToTable:     fd.ToTable,
			ToColumns:   to,
			Enforced:    enforced,
			Recommended: fd.Recommended,
		})
	}
	return New(tables, fks)
}

// ToDocument converts a Schema back into its document form.
func ToDocument(s *Schema) *Document {
	doc := &Document{Tables: make(map[string]TableDoc, len(s.names))}
	for _, t := range s.Tables() {
		doc.Tables[t.Name] = TableDoc{
			Columns:    ColumnsDoc(t.Columns),
			PrimaryKey: t.PrimaryKey,
			Role:       string(t.Role),
			RowCount:   t.RowCount,
		}
	}
	for _, fk := range s.ForeignKeys() {
		fd := ForeignKeyDoc{
			FromTable:   fk.FromTable,
			FromColumns: fk.FromColumns,
			ToTable:     fk.ToTable,
			ToColumns:   fk.ToColumns,
			Recommended: fk.Recommended,
		}
		if !fk.Enforced {
			f := false
			fd.Enforced = &f
		}
		doc.ForeignKeys = append(doc.ForeignKeys, fd)
	}
	return doc
}
