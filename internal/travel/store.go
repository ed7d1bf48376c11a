package travel

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned for unknown ids and for records owned by another account.
var ErrNotFound = errors.New("not found")

// Store is the in-memory trip store. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	trips       map[string]*Trip
	expenses    map[string][]Expense    // trip id -> expenses in insertion order
	attachments map[string][]Attachment // trip id -> attachments in insertion order
	feedback    []Feedback

	now func() time.Time
}

type StoreOption func(*Store)

// WithStoreClock overrides time.Now, used by tests.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		trips:       make(map[string]*Trip),
		expenses:    make(map[string][]Expense),
		attachments: make(map[string][]Attachment),
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateTrip assigns id, status default and timestamps, then stores t.
func (s *Store) CreateTrip(accountID string, t Trip) Trip {
	now := s.now().UTC()
	t.ID = NewTripID()
	t.AccountID = accountID
	if t.Status == "" {
		t.Status = StatusPlanned
	}
	t.CreatedAt, t.UpdatedAt = now, now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[t.ID] = &t
	return t
}

// ListTrips returns the account's trips ordered by start date, then creation.
func (s *Store) ListTrips(accountID string) []Trip {
	s.mu.RLock()
	out := make([]Trip, 0)
	for _, t := range s.trips {
		if t.AccountID == accountID {
			out = append(out, *t)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Trip) int {
		if c := strings.Compare(a.StartDate, b.StartDate); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (s *Store) GetTrip(accountID, id string) (Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.ownedLocked(accountID, id)
	if !ok {
		return Trip{}, ErrNotFound
	}
	return *t, nil
}

func (s *Store) UpdateTrip(accountID, id string, p TripPatch) (Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ownedLocked(accountID, id)
	if !ok {
		return Trip{}, ErrNotFound
	}
	p.apply(t)
	t.UpdatedAt = s.now().UTC()
	return *t, nil
}

// DeleteTrip removes the trip and everything attached to it. It returns the
// removed attachments so the caller can clean up stored objects.
func (s *Store) DeleteTrip(accountID, id string) ([]Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ownedLocked(accountID, id); !ok {
		return nil, ErrNotFound
	}
	atts := s.attachments[id]
	s.deleteTripLocked(id)
	return atts, nil
}

func (s *Store) deleteTripLocked(id string) {
	delete(s.trips, id)
	delete(s.expenses, id)
	delete(s.attachments, id)
}

func (s *Store) AddExpense(accountID, tripID string, e Expense) (Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ownedLocked(accountID, tripID); !ok {
		return Expense{}, ErrNotFound
	}
	e.ID = NewRecordID()
	e.TripID = tripID
	e.CreatedAt = s.now().UTC()
	s.expenses[tripID] = append(s.expenses[tripID], e)
	return e, nil
}

func (s *Store) ListExpenses(accountID, tripID string) ([]Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.ownedLocked(accountID, tripID); !ok {
		return nil, ErrNotFound
	}
	return append(make([]Expense, 0, len(s.expenses[tripID])), s.expenses[tripID]...), nil
}

// AddAttachment records metadata for an object that is already stored. The
// id must come from NewRecordID since it is part of the object key.
func (s *Store) AddAttachment(accountID, tripID string, a Attachment) (Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ownedLocked(accountID, tripID); !ok {
		return Attachment{}, ErrNotFound
	}
	if a.ID == "" {
		a.ID = NewRecordID()
	}
	a.TripID = tripID
	a.CreatedAt = s.now().UTC()
	s.attachments[tripID] = append(s.attachments[tripID], a)
	return a, nil
}

func (s *Store) ListAttachments(accountID, tripID string) ([]Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.ownedLocked(accountID, tripID); !ok {
		return nil, ErrNotFound
	}
	return append(make([]Attachment, 0, len(s.attachments[tripID])), s.attachments[tripID]...), nil
}

func (s *Store) SaveFeedback(f Feedback) Feedback {
	f.ID = NewRecordID()
	f.CreatedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, f)
	return f
}

// FeedbackCount reports stored feedback entries.
func (s *Store) FeedbackCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.feedback)
}

// DeleteAccount removes every trip the account owns along with expenses and
// attachments, and detaches the account from feedback it submitted. The
// removed attachments are returned for object cleanup.
func (s *Store) DeleteAccount(accountID string) (AccountSummary, []Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum AccountSummary
	var atts []Attachment
	for id, t := range s.trips {
		if t.AccountID != accountID {
			continue
		}
		sum.Trips++
		sum.Expenses += len(s.expenses[id])
		sum.Attachments += len(s.attachments[id])
		atts = append(atts, s.attachments[id]...)
		s.deleteTripLocked(id)
	}
	for i := range s.feedback {
		if s.feedback[i].AccountID == accountID {
			s.feedback[i].AccountID = ""
		}
	}
	return sum, atts
}

func (s *Store) ownedLocked(accountID, id string) (*Trip, bool) {
	t, ok := s.trips[id]
	if !ok || t.AccountID != accountID {
		return nil, false
	}
	return t, true
}
