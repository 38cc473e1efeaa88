// Package memstore keeps documents in process memory. It backs tests and the
// STORE_DRIVER=memory mode, optionally mirrored to a JSON file.
package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/billing/internal/documents"
)

type state struct {
	Documents map[uuid.UUID]documents.Document `json:"documents"`
	Lines     map[uuid.UUID][]documents.Line   `json:"lines"`
	Sequences map[string]int                   `json:"sequences"`
}

func newState() *state {
	return &state{
		Documents: make(map[uuid.UUID]documents.Document),
		Lines:     make(map[uuid.UUID][]documents.Line),
		Sequences: make(map[string]int),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, d := range s.Documents {
		c.Documents[id] = cloneDocument(d)
	}
	for id, lines := range s.Lines {
		c.Lines[id] = cloneLines(lines)
	}
	for k, v := range s.Sequences {
		c.Sequences[k] = v
	}
	return c
}

var _ documents.Repository = (*Store)(nil)

const (
	lockRetry    = 20 * time.Millisecond
	staleLockAge = 30 * time.Second
)

// fileStamp identifies the version of the mirror file a store last saw.
type fileStamp struct {
	mod  time.Time
	size int64
}

// Store is an in-memory documents.Repository. Writers are serialized and
// each transaction works on a private copy that replaces the live state only
// when fn succeeds. A file-backed store re-reads the file whenever another
// process has rewritten it, and holds a lock file for the duration of each
// transaction.
type Store struct {
	mu    sync.RWMutex
	st    *state
	path  string
	stamp fileStamp
	now   func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// Open loads path when it exists and mirrors every committed transaction back
// to it. Several processes may open the same path.
func Open(path string) (*Store, error) {
	s := New()
	s.path = path
	if err := s.reloadLocked(); err != nil {
		return nil, fmt.Errorf("load memstore %s: %w", path, err)
	}
	return s, nil
}

// Load replaces the store content with a JSON dump.
func (s *Store) Load(r io.Reader) error {
	st, err := decodeState(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.st = st
	s.mu.Unlock()
	return nil
}

func decodeState(r io.Reader) (*state, error) {
	st := newState()
	if err := json.NewDecoder(r).Decode(st); err != nil {
		return nil, err
	}
	if st.Documents == nil {
		st.Documents = make(map[uuid.UUID]documents.Document)
	}
	if st.Lines == nil {
		st.Lines = make(map[uuid.UUID][]documents.Line)
	}
	if st.Sequences == nil {
		st.Sequences = make(map[string]int)
	}
	return st, nil
}

func statFile(path string) (fileStamp, bool, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fileStamp{}, false, nil
	}
	if err != nil {
		return fileStamp{}, false, err
	}
	return fileStamp{mod: fi.ModTime(), size: fi.Size()}, true, nil
}

// reloadLocked replaces the state with the file content when the file changed
// since it was last read or written. The caller holds mu for writing.
func (s *Store) reloadLocked() error {
	if s.path == "" {
		return nil
	}
	cur, ok, err := statFile(s.path)
	if err != nil || !ok || cur == s.stamp {
		return err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := decodeState(f)
	if err != nil {
		return err
	}
	s.st = st
	s.stamp = cur
	return nil
}

// refresh picks up writes made by other processes before a read.
func (s *Store) refresh() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	seen := s.stamp
	s.mu.RUnlock()
	cur, ok, err := statFile(s.path)
	if err != nil || !ok || cur == seen {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reloadLocked(); err != nil {
		return fmt.Errorf("reload memstore: %w", err)
	}
	return nil
}

// lockFile takes the cross-process write lock next to the mirror file. A lock
// older than staleLockAge is assumed abandoned.
func (s *Store) lockFile(ctx context.Context) (func(), error) {
	if s.path == "" {
		return func() {}, nil
	}
	lockPath := s.path + ".lock"
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("lock memstore: %w", err)
		}
		if fi, err := os.Stat(lockPath); err == nil && time.Since(fi.ModTime()) > staleLockAge {
			os.Remove(lockPath)
			continue
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock memstore: %w", ctx.Err())
		case <-time.After(lockRetry):
		}
	}
}

// Dump writes the store content as JSON.
func (s *Store) Dump(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s.st)
}

// persist writes st to the mirror file and records its new stamp. The caller
// holds mu for writing.
func (s *Store) persist(st *state) error {
	if s.path == "" {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".memstore-*")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return err
	}
	stamp, _, err := statFile(s.path)
	if err != nil {
		return err
	}
	s.stamp = stamp
	return nil
}

// ============================================================================
// READ OPERATIONS
// ============================================================================

// FindByType returns every document of type t ordered by number.
func (s *Store) FindByType(_ context.Context, t documents.DocumentType) ([]documents.Document, error) {
	if err := s.refresh(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findByType(s.st, t), nil
}

// FindByID returns a copy of the document header.
func (s *Store) FindByID(_ context.Context, id uuid.UUID) (*documents.Document, error) {
	if err := s.refresh(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findByID(s.st, id)
}

// FindByNumber looks a document up by (type, number).
func (s *Store) FindByNumber(_ context.Context, t documents.DocumentType, number string) (*documents.Document, error) {
	if err := s.refresh(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findByNumber(s.st, t, number)
}

// FindLines returns the lines of a document ordered by line order.
func (s *Store) FindLines(_ context.Context, documentID uuid.UUID) ([]documents.Line, error) {
	if err := s.refresh(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLines(s.st.Lines[documentID]), nil
}

// List filters and pages headers, newest first.
func (s *Store) List(_ context.Context, req documents.ListRequest) ([]documents.Document, int, error) {
	if err := s.refresh(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []documents.Document
	for _, d := range s.st.Documents {
		if req.Type != nil && d.Type != *req.Type {
			continue
		}
		if req.Status != nil && d.Status != *req.Status {
			continue
		}
		if req.ClientID != nil && d.ClientID != *req.ClientID {
			continue
		}
		matched = append(matched, cloneDocument(d))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].DateIssued.Equal(matched[j].DateIssued) {
			return matched[i].DateIssued.After(matched[j].DateIssued)
		}
		return matched[i].Number > matched[j].Number
	})

	total := len(matched)
	if req.Offset >= total {
		return []documents.Document{}, total, nil
	}
	end := total
	if req.Limit > 0 && req.Offset+req.Limit < end {
		end = req.Offset + req.Limit
	}
	return matched[req.Offset:end], total, nil
}

// WithTx runs fn against a private copy of the state and publishes it when fn
// returns nil. A file-backed store first reloads any newer file content.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, documents.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockFile(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if err := s.reloadLocked(); err != nil {
		return fmt.Errorf("reload memstore: %w", err)
	}

	staged := s.st.clone()
	if err := fn(ctx, &tx{st: staged, now: s.now}); err != nil {
		return err
	}
	if err := s.persist(staged); err != nil {
		return fmt.Errorf("persist memstore: %w", err)
	}
	s.st = staged
	return nil
}

// ============================================================================
// SHARED HELPERS
// ============================================================================

func findByType(st *state, t documents.DocumentType) []documents.Document {
	var out []documents.Document
	for _, d := range st.Documents {
		if d.Type == t {
			out = append(out, cloneDocument(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func findByID(st *state, id uuid.UUID) (*documents.Document, error) {
	d, ok := st.Documents[id]
	if !ok {
		return nil, documents.ErrDocumentNotFound
	}
	c := cloneDocument(d)
	return &c, nil
}

func findByNumber(st *state, t documents.DocumentType, number string) (*documents.Document, error) {
	for _, d := range st.Documents {
		if d.Type == t && d.Number == number {
			c := cloneDocument(d)
			return &c, nil
		}
	}
	return nil, documents.ErrDocumentNotFound
}

func cloneDocument(d documents.Document) documents.Document {
	if d.ClientSnapshot != nil {
		snap := *d.ClientSnapshot
		d.ClientSnapshot = &snap
	}
	d.ProjectID = cloneUUID(d.ProjectID)
	d.RelatedDocumentID = cloneUUID(d.RelatedDocumentID)
	d.RectifiesDocumentID = cloneUUID(d.RectifiesDocumentID)
	if d.DateDue != nil {
		due := *d.DateDue
		d.DateDue = &due
	}
	if d.Notes != nil {
		notes := *d.Notes
		d.Notes = &notes
	}
	breakdown := make(map[string]documents.VATBucket, len(d.Totals.VATBreakdown))
	for k, v := range d.Totals.VATBreakdown {
		breakdown[k] = v
	}
	d.Totals.VATBreakdown = breakdown
	d.Lines = nil
	return d
}

func cloneLines(lines []documents.Line) []documents.Line {
	out := make([]documents.Line, len(lines))
	for i, l := range lines {
		l.ItemID = cloneUUID(l.ItemID)
		out[i] = l
	}
	return out
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
