package apihttp

import (
	"net/http"

	"github.com/keithlinneman/tripdesk/internal/respond"
	"github.com/keithlinneman/tripdesk/internal/sanitize"
	"github.com/keithlinneman/tripdesk/internal/travel"
)

const (
	maxExpenseDescriptionLen = 500
	// 10 million in major units
	maxAmountCents = 1_000_000_000
)

var expenseFields = []string{"category", "amount_cents", "currency", "description", "date"}

type expenseInput struct {
	Category    string `json:"category"`
	AmountCents *int64 `json:"amount_cents"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

func (in expenseInput) validate() string {
	switch {
	case !sanitize.OneOf(in.Category, travel.ExpenseCategories()...):
		return "Invalid expense category"
	case in.AmountCents == nil:
		return "Amount is required"
	case *in.AmountCents <= 0 || *in.AmountCents > maxAmountCents:
		return "Invalid amount"
	case !isCurrency(in.Currency):
		return "Invalid currency"
	case !checkLen(in.Description, maxExpenseDescriptionLen):
		return "Description is too long"
	case !sanitize.Date(in.Date):
		return "Invalid date"
	}
	return ""
}

type expenseList struct {
	Expenses []travel.Expense `json:"expenses"`
	// sum of amount_cents per currency
	Totals map[string]int64 `json:"totals"`
}

func (api *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireAccount(w, r)
	if !ok {
		return
	}
	tripID, ok := api.pathID(w, r, "tripID", "trip")
	if !ok {
		return
	}
	list, err := api.store.ListExpenses(acct, tripID)
	if err != nil {
		api.storeError(w, r, err)
		return
	}
	totals := make(map[string]int64)
	for _, e := range list {
		totals[e.Currency] += e.AmountCents
	}
	respond.JSON(w, http.StatusOK, expenseList{Expenses: list, Totals: totals})
}

func (api *API) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireAccount(w, r)
	if !ok {
		return
	}
	tripID, ok := api.pathID(w, r, "tripID", "trip")
	if !ok {
		return
	}
	raw, err := readJSONObject(w, r, api.maxJSON)
	if err != nil {
		api.writeBodyError(w, r, err)
		return
	}
	in, err := sanitize.Decode[expenseInput](raw, expenseFields)
	if err != nil {
		api.invalid(w, r, "Invalid field type")
		return
	}
	if msg := in.validate(); msg != "" {
		api.invalid(w, r, msg)
		return
	}

	e, err := api.store.AddExpense(acct, tripID, travel.Expense{
		Category:    in.Category,
		AmountCents: *in.AmountCents,
		Currency:    in.Currency,
		Description: in.Description,
		Date:        in.Date,
	})
	if err != nil {
		api.storeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, e)
}
