package travel

import (
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

const (
	alice = "3f2b8c1e-5d4a-4e7f-9a0b-1c2d3e4f5a6b"
	bob   = "ckv9q2x7m0000abcdefghijk"
)

func newTestStore() *Store {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	return NewStore(WithStoreClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}))
}

func TestNewRecordID_Format(t *testing.T) {
	re := regexp.MustCompile(`^c[a-z0-9]{24}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewRecordID()
		if !re.MatchString(id) {
			t.Fatalf("id %q does not match CUID shape", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewTripID_IsUUID(t *testing.T) {
	if _, err := uuid.Parse(NewTripID()); err != nil {
		t.Fatalf("trip id is not a UUID: %v", err)
	}
}

func TestCreateTrip_Defaults(t *testing.T) {
	s := newTestStore()
	trip := s.CreateTrip(alice, Trip{Title: "Berlin offsite", Destination: "Berlin", StartDate: "2026-05-04"})

	if trip.ID == "" || trip.AccountID != alice {
		t.Fatalf("trip = %+v", trip)
	}
	if trip.Status != StatusPlanned {
		t.Fatalf("Status = %q, want planned", trip.Status)
	}
	if trip.CreatedAt.IsZero() || !trip.CreatedAt.Equal(trip.UpdatedAt) {
		t.Fatalf("timestamps = %v / %v", trip.CreatedAt, trip.UpdatedAt)
	}
}

func TestCreateTrip_IgnoresCallerIDs(t *testing.T) {
	s := newTestStore()
	trip := s.CreateTrip(alice, Trip{ID: "chosen", AccountID: bob, Title: "x"})
	if trip.ID == "chosen" || trip.AccountID != alice {
		t.Fatalf("caller-supplied id or account leaked: %+v", trip)
	}
}

func TestListTrips_ScopedAndOrdered(t *testing.T) {
	s := newTestStore()
	late := s.CreateTrip(alice, Trip{Title: "late", StartDate: "2026-09-01"})
	early := s.CreateTrip(alice, Trip{Title: "early", StartDate: "2026-04-01"})
	s.CreateTrip(bob, Trip{Title: "bob's", StartDate: "2026-01-01"})

	got := s.ListTrips(alice)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != early.ID || got[1].ID != late.ID {
		t.Fatalf("order = %s, %s", got[0].Title, got[1].Title)
	}
	if got := s.ListTrips("nobody"); got == nil || len(got) != 0 {
		t.Fatalf("empty account should list an empty non-nil slice, got %#v", got)
	}
}

func TestGetTrip_OtherAccountIsNotFound(t *testing.T) {
	s := newTestStore()
	trip := s.CreateTrip(alice, Trip{Title: "x"})

	if _, err := s.GetTrip(bob, trip.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetTrip(alice, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if got, err := s.GetTrip(alice, trip.ID); err != nil || got.Title != "x" {
		t.Fatalf("GetTrip = %+v, %v", got, err)
	}
}

func TestUpdateTrip_Partial(t *testing.T) {
	s := newTestStore()
	trip := s.CreateTrip(alice, Trip{Title: "old", Destination: "Oslo"})

	title := "new"
	status := StatusBooked
	got, err := s.UpdateTrip(alice, trip.ID, TripPatch{Title: &title, Status: &status})
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "new" || got.Status != StatusBooked || got.Destination != "Oslo" {
		t.Fatalf("updated = %+v", got)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Fatal("UpdatedAt should advance")
	}

	if _, err := s.UpdateTrip(bob, trip.ID, TripPatch{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-account update err = %v", err)
	}
}

func TestDeleteTrip_RemovesChildren(t *testing.T) {
	s := newTestStore()
	trip := s.CreateTrip(alice, Trip{Title: "x"})
	if _, err := s.AddExpense(alice, trip.ID, Expense{Category: ExpenseMeals, AmountCents: 1200, Currency: "EUR"}); err != nil {
		t.Fatal(err)
	}
	att, err := s.AddAttachment(alice, trip.ID, Attachment{Filename: "receipt.pdf", ObjectKey: "k"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.DeleteTrip(bob, trip.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-account delete err = %v", err)
	}

	removed, err := s.DeleteTrip(alice, trip.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || removed[0].ID != att.ID {
		t.Fatalf("removed attachments = %+v", removed)
	}
	if _, err := s.ListExpenses(alice, trip.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expenses after delete err = %v", err)
	}
	if _, err := s.DeleteTrip(alice, trip.ID); !errors.Is(err, ErrNotFound) {
		t.Fatal("second delete should be not found")
	}
}

func TestExpenses(t *testing.T) {
	s := newTestStore()
	trip := s.CreateTrip(alice, Trip{Title: "x"})

	e1, _ := s.AddExpense(alice, trip.ID, Expense{Category: ExpenseTransport, AmountCents: 4500, Currency: "USD"})
	e2, _ := s.AddExpense(alice, trip.ID, Expense{Category: ExpenseLodging, AmountCents: 12000, Currency: "USD"})

	if e1.TripID != trip.ID || e1.ID == e2.ID {
		t.Fatalf("expenses = %+v %+v", e1, e2)
	}

	got, err := s.ListExpenses(alice, trip.ID)
	if err != nil || len(got) != 2 || got[0].ID != e1.ID {
		t.Fatalf("ListExpenses = %+v, %v", got, err)
	}

	got[0].AmountCents = 1
	again, _ := s.ListExpenses(alice, trip.ID)
	if again[0].AmountCents != 4500 {
		t.Fatal("ListExpenses must return a copy")
	}

	if _, err := s.AddExpense(bob, trip.ID, Expense{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-account AddExpense err = %v", err)
	}
}

func TestAddAttachment_KeepsProvidedID(t *testing.T) {
	s := newTestStore()
	trip := s.CreateTrip(alice, Trip{Title: "x"})
	id := NewRecordID()

	a, err := s.AddAttachment(alice, trip.ID, Attachment{ID: id, Filename: "a.png"})
	if err != nil || a.ID != id {
		t.Fatalf("AddAttachment = %+v, %v", a, err)
	}
	list, _ := s.ListAttachments(alice, trip.ID)
	if len(list) != 1 {
		t.Fatalf("ListAttachments len = %d", len(list))
	}
}

func TestSaveFeedback(t *testing.T) {
	s := newTestStore()
	f := s.SaveFeedback(Feedback{Email: "a@example.com", Topic: "bug", Message: "hi"})
	if f.ID == "" || f.CreatedAt.IsZero() {
		t.Fatalf("feedback = %+v", f)
	}
	if s.FeedbackCount() != 1 {
		t.Fatalf("FeedbackCount = %d", s.FeedbackCount())
	}
}

func TestDeleteAccount(t *testing.T) {
	s := newTestStore()
	t1 := s.CreateTrip(alice, Trip{Title: "1"})
	t2 := s.CreateTrip(alice, Trip{Title: "2"})
	keep := s.CreateTrip(bob, Trip{Title: "bob"})
	s.AddExpense(alice, t1.ID, Expense{})
	s.AddExpense(alice, t2.ID, Expense{})
	s.AddAttachment(alice, t2.ID, Attachment{Filename: "f.pdf"})
	s.SaveFeedback(Feedback{AccountID: alice, Message: "bye"})

	sum, atts := s.DeleteAccount(alice)
	if sum != (AccountSummary{Trips: 2, Expenses: 2, Attachments: 1}) {
		t.Fatalf("summary = %+v", sum)
	}
	if len(atts) != 1 {
		t.Fatalf("attachments = %+v", atts)
	}
	if len(s.ListTrips(alice)) != 0 {
		t.Fatal("alice should have no trips left")
	}
	if _, err := s.GetTrip(bob, keep.ID); err != nil {
		t.Fatal("other accounts must be untouched")
	}
	if s.feedback[0].AccountID != "" {
		t.Fatal("feedback should be detached from the deleted account")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	trip := s.CreateTrip(alice, Trip{Title: "x"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = s.AddExpense(alice, trip.ID, Expense{AmountCents: 1})
		}()
		go func() {
			defer wg.Done()
			_ = s.ListTrips(alice)
		}()
		go func() {
			defer wg.Done()
			_, _ = s.ListExpenses(alice, trip.ID)
		}()
	}
	wg.Wait()

	got, _ := s.ListExpenses(alice, trip.ID)
	if len(got) != 50 {
		t.Fatalf("expenses = %d, want 50", len(got))
	}
}
