// Package workload loads the query-block documents a SQL front end emits
// and turns them into join graph inputs.
package workload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"mv-advisor/internal/domain"
	"mv-advisor/internal/joingraph"
)

// Document is one workload file. YAML and JSON are both accepted.
type Document struct {
	QueryBlocks []QueryBlockDoc `yaml:"query_blocks" json:"query_blocks"`
}

// QueryBlockDoc describes one query block.
type QueryBlockDoc struct {
	ID                 string      `yaml:"qb_id" json:"qb_id"`
	SourceFile         string      `yaml:"source_sql_file,omitempty" json:"source_sql_file,omitempty"`
	Kind               string      `yaml:"qb_kind,omitempty" json:"qb_kind,omitempty"`
	Sources            []SourceDoc `yaml:"sources" json:"sources"`
	JoinEdges          []EdgeDoc   `yaml:"join_edges" json:"join_edges"`
	GroupingSignature  string      `yaml:"grouping_signature,omitempty" json:"grouping_signature,omitempty"`
	HasRollupSemantics bool        `yaml:"has_rollup_semantics,omitempty" json:"has_rollup_semantics,omitempty"`
}

// SourceDoc is one FROM-clause source.
type SourceDoc struct {
	Alias string `yaml:"alias,omitempty" json:"alias,omitempty"`
	Name  string `yaml:"name" json:"name"`
	Kind  string `yaml:"kind,omitempty" json:"kind,omitempty"`
}

// EdgeDoc is one extracted join predicate.
type EdgeDoc struct {
	Left     string `yaml:"left" json:"left"`
	LeftCol  string `yaml:"left_col" json:"left_col"`
	Right    string `yaml:"right" json:"right"`
	RightCol string `yaml:"right_col" json:"right_col"`
	Op       string `yaml:"op,omitempty" json:"op,omitempty"`
	JoinType string `yaml:"join_type,omitempty" json:"join_type,omitempty"`
	Origin   string `yaml:"origin,omitempty" json:"origin,omitempty"`
}

// Workload is the ordered set of query blocks read from one or more files.
type Workload struct {
	QueryBlocks []joingraph.QueryBlock
	Files       []string
}

// LoadOptions configures decoding.
type LoadOptions struct {
	AllowUnknownFields bool
}

// Load reads a workload file, or every .yaml, .yml, and .json file below a
// directory in lexical path order.
func Load(path string, opts LoadOptions) (*Workload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat workload: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = workloadFiles(path)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, domain.ErrValidation("no workload documents under %s", path)
		}
	}

	b := newBuilder()
	for _, f := range files {
		data, err := os.ReadFile(f) //nolint:gosec // path is caller-controlled
		if err != nil {
			return nil, fmt.Errorf("read workload %s: %w", f, err)
		}
		doc, err := decode(data, opts)
		if err != nil {
			return nil, fmt.Errorf("workload %s: %w", f, err)
		}
		if err := b.add(doc, f); err != nil {
			return nil, fmt.Errorf("workload %s: %w", f, err)
		}
	}
	return &Workload{QueryBlocks: b.qbs, Files: files}, nil
}

// Parse decodes a single in-memory workload document.
func Parse(data []byte, opts LoadOptions) (*Workload, error) {
	doc, err := decode(data, opts)
	if err != nil {
		return nil, err
	}
	b := newBuilder()
	if err := b.add(doc, ""); err != nil {
		return nil, err
	}
	return &Workload{QueryBlocks: b.qbs}, nil
}

// FromDocument converts an already decoded document.
func FromDocument(doc *Document) (*Workload, error) {
	b := newBuilder()
	if err := b.add(doc, ""); err != nil {
		return nil, err
	}
	return &Workload{QueryBlocks: b.qbs}, nil
}

func workloadFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml", ".json":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk workload %s: %w", dir, err)
	}
	return files, nil
}

func decode(data []byte, opts LoadOptions) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(!opts.AllowUnknownFields)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.ErrValidation("parse: %v", err)
	}
	return &doc, nil
}

type builder struct {
	seen map[string]string
	qbs  []joingraph.QueryBlock
}

func newBuilder() *builder {
	return &builder{seen: make(map[string]string)}
}

func (b *builder) add(doc *Document, file string) error {
	for _, qd := range doc.QueryBlocks {
		qb, err := convert(qd)
		if err != nil {
			return err
		}
		if prev, dup := b.seen[qb.ID]; dup {
			if prev == "" {
				return domain.ErrConflict("duplicate query block id %q", qb.ID)
			}
			return domain.ErrConflict("duplicate query block id %q (first seen in %s)", qb.ID, prev)
		}
		b.seen[qb.ID] = file
		if qb.SourceFile == "" && file != "" {
			qb.SourceFile = filepath.Base(file)
		}
		b.qbs = append(b.qbs, qb)
	}
	return nil
}

func convert(qd QueryBlockDoc) (joingraph.QueryBlock, error) {
	id := strings.TrimSpace(qd.ID)
	if id == "" {
		return joingraph.QueryBlock{}, domain.ErrValidation("query block without qb_id")
	}
	qb := joingraph.QueryBlock{
		ID:                 id,
		SourceFile:         qd.SourceFile,
		Kind:               qd.Kind,
		GroupingSignature:  qd.GroupingSignature,
		HasRollupSemantics: qd.HasRollupSemantics,
	}

	aliases := make(map[string]bool, len(qd.Sources))
	for _, sd := range qd.Sources {
		if strings.TrimSpace(sd.Name) == "" {
			return joingraph.QueryBlock{}, domain.ErrValidation("query block %s: source without name", id)
		}
		kind, err := parseKind(sd.Kind)
		if err != nil {
			return joingraph.QueryBlock{}, fmt.Errorf("query block %s: %w", id, err)
		}
		alias := strings.TrimSpace(sd.Alias)
		if alias == "" {
			alias = strings.TrimSpace(sd.Name)
		}
		aliases[strings.ToLower(alias)] = true
		qb.Sources = append(qb.Sources, joingraph.Source{Alias: alias, Name: sd.Name, Kind: kind})
	}

	for _, ed := range qd.JoinEdges {
		e, err := convertEdge(ed)
		if err != nil {
			return joingraph.QueryBlock{}, fmt.Errorf("query block %s: %w", id, err)
		}
		for _, alias := range []string{strings.ToLower(e.Left), strings.ToLower(e.Right)} {
			if alias != "" && !aliases[alias] {
				return joingraph.QueryBlock{}, &domain.MalformedEdgeError{
					Scope:    "query block " + id,
					Edge:     fmt.Sprintf("%s.%s %s %s.%s", ed.Left, ed.LeftCol, ed.Op, ed.Right, ed.RightCol),
					Instance: alias,
				}
			}
		}
		qb.Edges = append(qb.Edges, e)
	}
	return qb, nil
}

func parseKind(s string) (joingraph.SourceKind, error) {
	switch k := joingraph.SourceKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return joingraph.SourceBase, nil
	case joingraph.SourceBase, joingraph.SourceCTERef, joingraph.SourceDerived:
		return k, nil
	}
	return "", domain.ErrValidation("unsupported source kind %q", s)
}

// convertEdge normalizes an edge document. RIGHT joins become LEFT joins
// with the sides swapped.
func convertEdge(ed EdgeDoc) (joingraph.JoinEdge, error) {
	jt, err := joingraph.ParseJoinType(ed.JoinType)
	if err != nil {
		return joingraph.JoinEdge{}, err
	}
	op := joingraph.NormalizeOp(ed.Op)
	if op == "" {
		op = "="
	}
	if !joingraph.ValidOp(op) {
		return joingraph.JoinEdge{}, domain.ErrValidation("unsupported join operator %q", ed.Op)
	}

	e := joingraph.JoinEdge{
		Left:     strings.TrimSpace(ed.Left),
		LeftCol:  ed.LeftCol,
		Right:    strings.TrimSpace(ed.Right),
		RightCol: ed.RightCol,
		Op:       op,
		JoinType: jt,
		Origin:   ed.Origin,
	}
	if jt == joingraph.JoinRight {
		e.Left, e.Right = e.Right, e.Left
		e.LeftCol, e.RightCol = e.RightCol, e.LeftCol
		e.Op = joingraph.FlipOp(op)
		e.JoinType = joingraph.JoinLeft
	}
	return e, nil
}
