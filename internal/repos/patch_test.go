package repos

import (
	"testing"

	"cloud.google.com/go/firestore"

	"github.com/thomasmilici/domux-backend/internal/types"
)

func updatePaths(updates []firestore.Update) map[string]interface{} {
	out := make(map[string]interface{}, len(updates))
	for _, u := range updates {
		out[u.Path] = u.Value
	}
	return out
}

func TestContextPatchOmitsNilFields(t *testing.T) {
	loc := "Milano"
	got := updatePaths(ContextPatch{Location: &loc}.Updates())

	if got["context.location"] != "Milano" {
		t.Fatalf("location update missing: %v", got)
	}
	if _, ok := got["context.descriptionItems"]; ok {
		t.Fatalf("descriptionItems must be omitted when nil")
	}
	if _, ok := got["context.committente"]; ok {
		t.Fatalf("committente must be omitted when nil")
	}
	if _, ok := got["updatedAt"]; !ok {
		t.Fatalf("updatedAt stamp must always be present")
	}
}

func TestContextPatchFullSet(t *testing.T) {
	items := []string{"Demolizione muro", "Posa parquet"}
	committente := types.Committente{Nome: "Mario", Cognome: "Rossi"}
	got := updatePaths(ContextPatch{
		DescriptionItems: &items,
		Committente:      &committente,
	}.Updates())

	if len(got) != 3 {
		t.Fatalf("expected 3 updates (items, committente, updatedAt), got %d: %v", len(got), got)
	}
}

func TestSessionPatchOmitsNilFields(t *testing.T) {
	paused := types.SessionStatusPaused
	note := "salvataggio fallito: timeout"
	got := updatePaths(SessionPatch{Status: &paused, ErrorLog: &note}.Updates())

	if got["status"] != paused {
		t.Fatalf("status update missing: %v", got)
	}
	if got["errorLog"] != note {
		t.Fatalf("errorLog update missing: %v", got)
	}
	for _, forbidden := range []string{"projectName", "generatedProjectId", "region", "preferredStores", "projectType", "parentId"} {
		if _, ok := got[forbidden]; ok {
			t.Fatalf("unset field %q must be omitted", forbidden)
		}
	}
}

func TestPatchIsEmpty(t *testing.T) {
	if !(ContextPatch{}).IsEmpty() {
		t.Fatalf("zero ContextPatch should be empty")
	}
	if !(SessionPatch{}).IsEmpty() {
		t.Fatalf("zero SessionPatch should be empty")
	}
	name := "x"
	if (SessionPatch{ProjectName: &name}).IsEmpty() {
		t.Fatalf("patch with a field must not be empty")
	}
}
