// Package job defines the persisted shopping job document. There is at
// most one live job at a time; the orchestrator owns all mutations and
// everything else reads snapshots through the job store.
package job

import "cartpilot/store"

type Type string

const (
	// fill the store's cart with the requested items
	TypeShopping Type = "shopping"
	// collect prices without touching the cart
	TypePriceCheck Type = "pricecheck"
)

type Status string

const (
	StatusIdle         Status = "idle"
	StatusSearching    Status = "searching"
	StatusAddingToCart Status = "addingToCart"
	StatusScraping     Status = "scraping"
)

// Item is one requested grocery line, e.g. "Pomidorai 1kg".
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity,omitempty"`
	// a previously matched product for this item, used as a hint so a
	// re-run picks the same product when it is still listed
	CachedProduct *store.Product `json:"cachedProduct,omitempty"`
}

type FailedItem struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Result is one priced item from a price-check run. A price check
// produces exactly one Result per requested item; when the item could
// not be priced, Error carries the reason and Product stays zero.
type Result struct {
	ItemName string        `json:"itemName"`
	Store    string        `json:"store"`
	Product  store.Product `json:"product"`
	Packages int           `json:"packages"`
	Total    float64       `json:"total"`
	Error    string        `json:"error,omitempty"`
}

type Job struct {
	Type  Type   `json:"type"`
	Items []Item `json:"items"`

	// index of the item currently being processed. only ever moves
	// forward within a run.
	CurrentIndex int    `json:"currentIndex"`
	Status       Status `json:"status"`
	// human-readable progress line, e.g. "Searching for Pomidorai (2/5)"
	StatusMessage string `json:"statusMessage"`
	IsRunning     bool   `json:"isRunning"`

	// page session the job is driving. transition events carry the
	// handle of the page they originate from; events from any other
	// page are ignored.
	TargetHandle string `json:"targetHandle"`

	FailedItems []FailedItem `json:"failedItems,omitempty"`
	// add-to-cart attempts already spent on the current item
	RetryCount int `json:"retryCount"`

	Results []Result `json:"results,omitempty"`

	// set while this job is one leg of a multi-store price check; the
	// orchestrator then skips per-store delivery and merges at the end
	MultiStoreMode   bool   `json:"multiStoreMode,omitempty"`
	CurrentStoreName string `json:"currentStoreName,omitempty"`
}

func New(t Type, storeName string, items []Item) *Job {
	return &Job{
		Type:             t,
		Items:            items,
		Status:           StatusIdle,
		IsRunning:        true,
		CurrentStoreName: storeName,
	}
}

// CurrentItem returns the item under the cursor, or false once the job
// has walked past the end of the list.
func (j *Job) CurrentItem() (Item, bool) {
	if j.CurrentIndex < 0 || j.CurrentIndex >= len(j.Items) {
		return Item{}, false
	}
	return j.Items[j.CurrentIndex], true
}

func (j *Job) Done() bool {
	return j.CurrentIndex >= len(j.Items)
}

// Advance moves the cursor to the next item and resets per-item state.
func (j *Job) Advance() {
	j.CurrentIndex++
	j.RetryCount = 0
	j.Status = StatusIdle
}

func (j *Job) MarkFailed(name, reason string) {
	j.FailedItems = append(j.FailedItems, FailedItem{Name: name, Reason: reason})
}
