// Package memory is an in-process RepositoryManager and dbx.TxRunner. A
// transaction holds the store lock from begin to end and restores a snapshot
// when its function fails, so it behaves like a serializable database. It is
// a test double for the Postgres repositories and is not wired into the server.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/repomanager"
)

var (
	_ repomanager.RepositoryManager = (*Store)(nil)
	_ dbx.TxRunner                  = (*Store)(nil)
)

// ErrInjectedFailure is returned by the write chosen with FailAfterWrites.
var ErrInjectedFailure = errors.New("injected write failure")

// handle is the DBTX the store hands out. Repositories never call it; it only
// tells them whether the store lock is already held.
type handle struct{ inTx bool }

func (handle) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errors.New("memory store: no SQL")
}

func (handle) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("memory store: no SQL")
}

func (handle) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

type quotaKey struct {
	owner  string
	period int64
}

type idemKey struct {
	credentialID, key, endpoint string
}

type state struct {
	seq         int64
	created     map[string]int64
	counters    map[models.EnvelopeType]int64
	envelopes   map[string]*models.Envelope
	metas       map[string]*models.DocumentMeta
	attachments map[string]*models.Attachment
	items       map[string]*models.EnvelopeItem
	recipients  map[string]*models.Recipient
	fields      map[string]*models.Field
	documents   map[string]*models.DocumentData
	audit       []*models.AuditLogEntry
	tokens      map[string]*models.SigningTwoFactorToken
	quota       map[quotaKey]int
	credentials map[string]*models.ApiCredential
	idempotency map[idemKey]*models.IdempotencyRecord
}

func newState() *state {
	return &state{
		created:     map[string]int64{},
		counters:    map[models.EnvelopeType]int64{},
		envelopes:   map[string]*models.Envelope{},
		metas:       map[string]*models.DocumentMeta{},
		attachments: map[string]*models.Attachment{},
		items:       map[string]*models.EnvelopeItem{},
		recipients:  map[string]*models.Recipient{},
		fields:      map[string]*models.Field{},
		documents:   map[string]*models.DocumentData{},
		tokens:      map[string]*models.SigningTwoFactorToken{},
		quota:       map[quotaKey]int{},
		credentials: map[string]*models.ApiCredential{},
		idempotency: map[idemKey]*models.IdempotencyRecord{},
	}
}

// clone copies the maps; values are replaced on write, never mutated in place.
func (s *state) clone() *state {
	c := *s
	c.created = maps.Clone(s.created)
	c.counters = maps.Clone(s.counters)
	c.envelopes = maps.Clone(s.envelopes)
	c.metas = maps.Clone(s.metas)
	c.attachments = maps.Clone(s.attachments)
	c.items = maps.Clone(s.items)
	c.recipients = maps.Clone(s.recipients)
	c.fields = maps.Clone(s.fields)
	c.documents = maps.Clone(s.documents)
	c.audit = append([]*models.AuditLogEntry(nil), s.audit...)
	c.tokens = maps.Clone(s.tokens)
	c.quota = maps.Clone(s.quota)
	c.credentials = maps.Clone(s.credentials)
	c.idempotency = maps.Clone(s.idempotency)
	return &c
}

func (s *state) touch(id string) {
	if _, ok := s.created[id]; !ok {
		s.seq++
		s.created[id] = s.seq
	}
}

// Store is the in-memory database.
type Store struct {
	mu sync.Mutex
	st *state

	writes    int
	failArmed bool
	failIn    int
}

func NewStore() *Store {
	return &Store{st: newState()}
}

// Conn returns a handle for single statements outside a transaction.
func (s *Store) Conn() dbx.DBTX {
	return handle{}
}

// RunInTx runs fn under the store lock and rolls every change back when fn
// returns an error or panics.
func (s *Store) RunInTx(ctx context.Context, fn dbx.TxFunc) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			s.st = snapshot
		}
	}()

	if err := fn(ctx, handle{inTx: true}); err != nil {
		return err
	}
	return s.st.checkDeferred()
}

// checkDeferred enforces the constraints Postgres checks at commit: recipient
// emails are unique per envelope.
func (s *state) checkDeferred() error {
	seen := map[[2]string]bool{}
	for _, r := range s.recipients {
		k := [2]string{r.EnvelopeID, r.Email}
		if seen[k] {
			return fmt.Errorf("%w: %s", common.ErrDuplicateEmail, r.Email)
		}
		seen[k] = true
	}
	return nil
}

// FailAfterWrites makes the write following the next n successful ones fail
// with ErrInjectedFailure. It simulates a crash in the middle of a transaction.
// A negative n disarms a pending failure.
func (s *Store) FailAfterWrites(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failArmed = n >= 0
	s.failIn = n
}

// WriteCount returns the number of writes performed so far.
func (s *Store) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// write is called by every mutating repository method before it changes state.
func (s *Store) write() error {
	if s.failArmed {
		if s.failIn == 0 {
			s.failArmed = false
			return ErrInjectedFailure
		}
		s.failIn--
	}
	s.writes++
	return nil
}

// enter takes the store lock unless db is a transaction handle.
func (s *Store) enter(db dbx.DBTX) func() {
	if h, ok := db.(handle); ok && h.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) RunMigrations(context.Context, *sql.DB) error {
	return nil
}
