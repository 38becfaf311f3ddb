package services

import (
	"testing"

	"github.com/thomasmilici/domux-backend/internal/types"
)

func TestDraftAddItemAssignsNextID(t *testing.T) {
	d := NewDraft()
	d.ReplaceItems([]types.ComputoItem{
		{ID: 1, Descrizione: "Demolizione muro"},
		{ID: 7, Descrizione: "Posa parquet"},
	})

	added := d.AddItem(types.ComputoItem{Descrizione: "Tinteggiatura"})
	if added.ID != 8 {
		t.Fatalf("new id = %d, want 8", added.ID)
	}

	items, _ := d.Snapshot()
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
}

func TestDraftUpdateAndRemove(t *testing.T) {
	d := NewDraft()
	d.ReplaceItems([]types.ComputoItem{{ID: 1, Quantita: 2}})

	if err := d.UpdateItem(types.ComputoItem{ID: 1, Quantita: 5}); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	items, _ := d.Snapshot()
	if items[0].Quantita != 5 {
		t.Fatalf("quantita = %v, want 5", items[0].Quantita)
	}

	if err := d.UpdateItem(types.ComputoItem{ID: 99}); err == nil {
		t.Fatalf("expected not-found on unknown id")
	}
	if err := d.RemoveItem(1); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if err := d.RemoveItem(1); err == nil {
		t.Fatalf("expected not-found after removal")
	}
}

func TestDraftTotalTrustsImporto(t *testing.T) {
	d := NewDraft()
	// Importo deliberately disagrees with qty×price: the total must trust it.
	d.ReplaceItems([]types.ComputoItem{
		{ID: 1, Quantita: 2, PrezzoUnitario: 50, Importo: 100},
		{ID: 2, Quantita: 3, PrezzoUnitario: 10, Importo: 999},
	})
	if got := d.Total(); got != 1099 {
		t.Fatalf("total = %v, want 1099", got)
	}
}

func TestDraftRecomputeAmounts(t *testing.T) {
	d := NewDraft()
	d.ReplaceItems([]types.ComputoItem{
		{ID: 1, Quantita: 3, PrezzoUnitario: 10.333, Importo: 0},
	})
	d.RecomputeAmounts()
	items, _ := d.Snapshot()
	if items[0].Importo != 31.00 {
		t.Fatalf("importo = %v, want 31.00", items[0].Importo)
	}
}

func TestDraftSnapshotIsIndependent(t *testing.T) {
	d := NewDraft()
	d.ReplaceItems([]types.ComputoItem{{ID: 1, Importo: 100}})
	d.SetReport("Demolizione muro")

	items, report := d.Snapshot()
	d.ReplaceItems(nil)
	d.SetReport("")

	if len(items) != 1 || items[0].Importo != 100 {
		t.Fatalf("snapshot mutated by later edits: %+v", items)
	}
	if report != "Demolizione muro" {
		t.Fatalf("report = %q", report)
	}
}
