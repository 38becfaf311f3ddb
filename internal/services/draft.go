package services

import (
	"math"
	"sync"

	"github.com/thomasmilici/domux-backend/internal/pkg/apperr"
	"github.com/thomasmilici/domux-backend/internal/types"
)

// Draft holds the user-editable estimate between generation and finalization:
// the line items plus the narrative report text. All accessors copy, so the
// snapshot handed to the finalization pipeline can never observe a later edit.
type Draft struct {
	mu     sync.Mutex
	items  []types.ComputoItem
	report string
}

func NewDraft() *Draft {
	return &Draft{}
}

func (d *Draft) ReplaceItems(items []types.ComputoItem) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = cloneItems(items)
}

func (d *Draft) SetReport(report string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.report = report
}

// AddItem appends the item with the next free numeric id and returns it.
func (d *Draft) AddItem(item types.ComputoItem) types.ComputoItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := 0
	for _, it := range d.items {
		if it.ID > next {
			next = it.ID
		}
	}
	item.ID = next + 1
	d.items = append(d.items, item)
	return item
}

func (d *Draft) UpdateItem(item types.ComputoItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.items {
		if d.items[i].ID == item.ID {
			d.items[i] = item
			return nil
		}
	}
	return apperr.NotFound("voce di computo non trovata")
}

func (d *Draft) RemoveItem(id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.items {
		if d.items[i].ID == id {
			d.items = append(d.items[:i], d.items[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("voce di computo non trovata")
}

// Snapshot returns an independent copy of the current draft state.
func (d *Draft) Snapshot() ([]types.ComputoItem, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneItems(d.items), d.report
}

// Total sums the importo fields as they stand. Amounts are certified as
// entered; see RecomputeAmounts for the edit-time helper.
func (d *Draft) Total() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ItemsTotal(d.items)
}

// RecomputeAmounts rewrites every importo as quantità × prezzo unitario,
// rounded to cents. Explicit edit-time operation only; finalization never
// applies it behind the user's back.
func (d *Draft) RecomputeAmounts() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.items {
		d.items[i].Importo = roundCents(d.items[i].Quantita * d.items[i].PrezzoUnitario)
	}
}

// ItemsTotal sums the precomputed importo of each line, with no
// quantity × price validation.
func ItemsTotal(items []types.ComputoItem) float64 {
	var total float64
	for _, it := range items {
		total += it.Importo
	}
	return total
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func cloneItems(items []types.ComputoItem) []types.ComputoItem {
	if items == nil {
		return nil
	}
	out := make([]types.ComputoItem, len(items))
	copy(out, items)
	return out
}
