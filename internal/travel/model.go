package travel

import "time"

// Trip statuses
const (
	StatusPlanned   = "planned"
	StatusBooked    = "booked"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Statuses lists every trip status in lifecycle order.
func Statuses() []string {
	return []string{StatusPlanned, StatusBooked, StatusCompleted, StatusCancelled}
}

// Expense categories
const (
	ExpenseTransport = "transport"
	ExpenseLodging   = "lodging"
	ExpenseMeals     = "meals"
	ExpenseOther     = "other"
)

func ExpenseCategories() []string {
	return []string{ExpenseTransport, ExpenseLodging, ExpenseMeals, ExpenseOther}
}

type Trip struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Title       string    `json:"title"`
	Destination string    `json:"destination"`
	Purpose     string    `json:"purpose,omitempty"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date,omitempty"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TripPatch carries the fields of a partial update; nil means unchanged.
type TripPatch struct {
	Title       *string
	Destination *string
	Purpose     *string
	StartDate   *string
	EndDate     *string
	Status      *string
	Notes       *string
}

func (p TripPatch) apply(t *Trip) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&t.Title, p.Title)
	set(&t.Destination, p.Destination)
	set(&t.Purpose, p.Purpose)
	set(&t.StartDate, p.StartDate)
	set(&t.EndDate, p.EndDate)
	set(&t.Status, p.Status)
	set(&t.Notes, p.Notes)
}

type Expense struct {
	ID          string    `json:"id"`
	TripID      string    `json:"trip_id"`
	Category    string    `json:"category"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Description string    `json:"description,omitempty"`
	Date        string    `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

type Attachment struct {
	ID          string    `json:"id"`
	TripID      string    `json:"trip_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	ObjectKey   string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

type Feedback struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id,omitempty"`
	Email     string    `json:"email"`
	Topic     string    `json:"topic"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountSummary counts what DeleteAccount removed.
type AccountSummary struct {
	Trips       int `json:"trips"`
	Expenses    int `json:"expenses"`
	Attachments int `json:"attachments"`
}
