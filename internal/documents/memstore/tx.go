package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/billing/internal/documents"
)

type tx struct {
	st  *state
	now func() time.Time
}

func sequenceKey(t documents.DocumentType, year int) string {
	return fmt.Sprintf("%s/%d", t, year)
}

// seed loads the counter of (t, year) from existing numbers the first time
// the key is touched.
func (t *tx) seed(dt documents.DocumentType, year int) string {
	key := sequenceKey(dt, year)
	if _, ok := t.st.Sequences[key]; !ok {
		t.st.Sequences[key] = documents.MaxSequence(findByType(t.st, dt), dt, year)
	}
	return key
}

func (t *tx) NextSequence(_ context.Context, dt documents.DocumentType, year int) (int, error) {
	key := t.seed(dt, year)
	t.st.Sequences[key]++
	return t.st.Sequences[key], nil
}

func (t *tx) ReserveSequence(_ context.Context, dt documents.DocumentType, year, seq int) error {
	key := t.seed(dt, year)
	if seq > t.st.Sequences[key] {
		t.st.Sequences[key] = seq
	}
	return nil
}

func (t *tx) FindByType(_ context.Context, dt documents.DocumentType) ([]documents.Document, error) {
	return findByType(t.st, dt), nil
}

func (t *tx) FindByID(_ context.Context, id uuid.UUID) (*documents.Document, error) {
	return findByID(t.st, id)
}

func (t *tx) FindByNumber(_ context.Context, dt documents.DocumentType, number string) (*documents.Document, error) {
	return findByNumber(t.st, dt, number)
}

func (t *tx) FindBySource(_ context.Context, dt documents.DocumentType, sourceID uuid.UUID) (*documents.Document, error) {
	var found *documents.Document
	for _, d := range t.st.Documents {
		if d.Type != dt || !linksTo(d, sourceID) {
			continue
		}
		if found == nil || d.CreatedAt.Before(found.CreatedAt) {
			c := cloneDocument(d)
			found = &c
		}
	}
	if found == nil {
		return nil, documents.ErrDocumentNotFound
	}
	return found, nil
}

func linksTo(d documents.Document, id uuid.UUID) bool {
	return (d.RelatedDocumentID != nil && *d.RelatedDocumentID == id) ||
		(d.RectifiesDocumentID != nil && *d.RectifiesDocumentID == id)
}

func (t *tx) FindLines(_ context.Context, documentID uuid.UUID) ([]documents.Line, error) {
	return cloneLines(t.st.Lines[documentID]), nil
}

func (t *tx) InsertDocument(_ context.Context, doc documents.Document) (*documents.Document, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if err := documents.CheckLinks(doc); err != nil {
		return nil, err
	}
	if _, exists := t.st.Documents[doc.ID]; exists {
		return nil, fmt.Errorf("document id %s already exists", doc.ID)
	}
	if _, err := findByNumber(t.st, doc.Type, doc.Number); err == nil {
		return nil, fmt.Errorf("%w: %s %s", documents.ErrAlreadyConverted, doc.Type, doc.Number)
	}
	now := t.now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	if doc.Totals.VATBreakdown == nil {
		doc.Totals.VATBreakdown = map[string]documents.VATBucket{}
	}
	stored := cloneDocument(doc)
	t.st.Documents[doc.ID] = stored
	out := cloneDocument(stored)
	return &out, nil
}

func (t *tx) UpdateDocument(_ context.Context, id uuid.UUID, patch documents.DocumentPatch) (*documents.Document, error) {
	d, ok := t.st.Documents[id]
	if !ok {
		return nil, documents.ErrDocumentNotFound
	}
	if patch.Status != nil {
		d.Status = *patch.Status
	}
	if patch.DateIssued != nil {
		d.DateIssued = *patch.DateIssued
	}
	if patch.DateDue != nil {
		due := *patch.DateDue
		d.DateDue = &due
	}
	if patch.ProjectID != nil {
		d.ProjectID = cloneUUID(patch.ProjectID)
	}
	if patch.Notes != nil {
		notes := *patch.Notes
		d.Notes = &notes
	}
	if patch.Totals != nil {
		d.Totals = *patch.Totals
	}
	d.UpdatedAt = t.now().UTC()
	t.st.Documents[id] = cloneDocument(d)
	out := cloneDocument(d)
	return &out, nil
}

func (t *tx) DeleteDocument(_ context.Context, id uuid.UUID) (bool, error) {
	if _, ok := t.st.Documents[id]; !ok {
		return false, nil
	}
	delete(t.st.Documents, id)
	delete(t.st.Lines, id)
	return true, nil
}

func (t *tx) InsertLine(_ context.Context, line documents.Line) (*documents.Line, error) {
	if _, ok := t.st.Documents[line.DocumentID]; !ok {
		return nil, fmt.Errorf("line parent %s: %w", line.DocumentID, documents.ErrDocumentNotFound)
	}
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}
	lines := append(t.st.Lines[line.DocumentID], line)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].LineOrder < lines[j].LineOrder })
	t.st.Lines[line.DocumentID] = lines
	return &line, nil
}

func (t *tx) DeleteAllLines(_ context.Context, documentID uuid.UUID) (bool, error) {
	had := len(t.st.Lines[documentID]) > 0
	delete(t.st.Lines, documentID)
	return had, nil
}
