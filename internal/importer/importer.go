// Package importer loads whole project documents from YAML or JSON and writes
// them through the repository ports.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"costbook/internal/core"
	"costbook/internal/ports"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var ErrUnknownFormat = errors.New("unknown document format")

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}

// Decode reads one project document. YAML is converted to JSON first so both
// formats share the timestamp and decimal normalization of the core types.
func Decode(r io.Reader, format Format) (core.ProjectSnapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.ProjectSnapshot{}, fmt.Errorf("read document: %w", err)
	}

	switch format {
	case FormatJSON:
	case FormatYAML:
		if data, err = yamlToJSON(data); err != nil {
			return core.ProjectSnapshot{}, err
		}
	default:
		return core.ProjectSnapshot{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	var snap core.ProjectSnapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return core.ProjectSnapshot{}, fmt.Errorf("decode project document: %w", err)
	}
	return snap, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	out, err := json.Marshal(normalize(doc))
	if err != nil {
		return nil, fmt.Errorf("convert yaml: %w", err)
	}
	return out, nil
}

// normalize turns the map[any]any nodes yaml may produce into JSON-encodable maps.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}

// Apply writes a decoded document through w and returns the stored project.
// The project and every child get fresh ids; document ids only link entities
// within the document, so milestone parents and the id lists of line items,
// materials and payments are rewritten to the new ids. References to ids the
// document does not define are kept as given. Errors name the document id.
func Apply(ctx context.Context, w ports.ProjectWriter, snap core.ProjectSnapshot) (core.Project, error) {
	project := snap.Project
	project.ID = ""
	p, err := w.CreateProject(ctx, project)
	if err != nil {
		return core.Project{}, fmt.Errorf("import project: %w", err)
	}

	milestoneIDs := idMap{}
	for _, m := range snap.Milestones {
		milestoneIDs.assign(m.ID)
	}
	materialIDs := idMap{}
	for _, mc := range snap.Materials {
		materialIDs.assign(mc.ID)
	}

	for _, m := range snap.Milestones {
		docID := m.ID
		m.ID = milestoneIDs.fresh(docID)
		m.ProjectID = p.ID
		if m.ParentID != "" {
			m.ParentID = milestoneIDs.resolve(m.ParentID)
		}
		if _, err := w.CreateMilestone(ctx, m); err != nil {
			return p, &core.ItemError{Kind: string(ports.KindMilestone), ID: docID, Err: err}
		}
	}
	for _, li := range snap.LineItems {
		docID := li.ID
		li.ID = uuid.NewString()
		li.ProjectID = p.ID
		li.MilestoneIDs = milestoneIDs.resolveAll(li.MilestoneIDs)
		if _, err := w.CreateLineItem(ctx, li); err != nil {
			return p, &core.ItemError{Kind: string(ports.KindLineItem), ID: docID, Err: err}
		}
	}
	for _, mc := range snap.Materials {
		docID := mc.ID
		mc.ID = materialIDs.fresh(docID)
		mc.ProjectID = p.ID
		mc.MilestoneIDs = milestoneIDs.resolveAll(mc.MilestoneIDs)
		if _, err := w.CreateMaterial(ctx, mc); err != nil {
			return p, &core.ItemError{Kind: string(ports.KindMaterial), ID: docID, Err: err}
		}
	}
	for _, ps := range snap.Payments {
		docID := ps.ID
		ps.ID = uuid.NewString()
		ps.ProjectID = p.ID
		ps.MilestoneIDs = milestoneIDs.resolveAll(ps.MilestoneIDs)
		ps.MaterialCostIDs = materialIDs.resolveAll(ps.MaterialCostIDs)
		if _, err := w.CreatePayment(ctx, ps); err != nil {
			return p, &core.ItemError{Kind: string(ports.KindPayment), ID: docID, Err: err}
		}
	}
	return p, nil
}

// idMap maps document ids to stored ids.
type idMap map[string]string

func (m idMap) assign(docID string) {
	if docID != "" {
		m[docID] = uuid.NewString()
	}
}

// fresh returns the id assigned to docID, or a new one for entities the
// document left without an id.
func (m idMap) fresh(docID string) string {
	if id, ok := m[docID]; ok {
		return id
	}
	return uuid.NewString()
}

func (m idMap) resolve(docID string) string {
	if id, ok := m[docID]; ok {
		return id
	}
	return docID
}

func (m idMap) resolveAll(docIDs []string) []string {
	if docIDs == nil {
		return nil
	}
	out := make([]string, len(docIDs))
	for i, id := range docIDs {
		out[i] = m.resolve(id)
	}
	return out
}
