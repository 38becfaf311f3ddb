package repos

import (
	"cloud.google.com/go/firestore"

	"github.com/thomasmilici/domux-backend/internal/types"
)

// ContextPatch is the explicit field set a caller may change inside a
// session's context record. Nil fields are omitted from the write entirely.
type ContextPatch struct {
	DescriptionItems *[]string
	Location         *string
	Committente      *types.Committente
}

// SessionPatch covers the mutable top-level session fields. ID, owner and
// context are deliberately not patchable through this path.
type SessionPatch struct {
	ProjectName        *string
	Status             *types.SessionStatus
	ProjectType        *types.ProjectType
	Region             *string
	PreferredStores    *[]string
	GeneratedProjectID *string
	ErrorLog           *string
	ParentID           *string
}

// Updates expands a ContextPatch into dotted Firestore field updates. The
// updatedAt stamp is always included so synchronized clients observe edits.
func (p ContextPatch) Updates() []firestore.Update {
	out := []firestore.Update{}
	if p.DescriptionItems != nil {
		out = append(out, firestore.Update{Path: "context.descriptionItems", Value: *p.DescriptionItems})
	}
	if p.Location != nil {
		out = append(out, firestore.Update{Path: "context.location", Value: *p.Location})
	}
	if p.Committente != nil {
		out = append(out, firestore.Update{Path: "context.committente", Value: *p.Committente})
	}
	out = append(out, firestore.Update{Path: "updatedAt", Value: firestore.ServerTimestamp})
	return out
}

func (p SessionPatch) Updates() []firestore.Update {
	out := []firestore.Update{}
	if p.ProjectName != nil {
		out = append(out, firestore.Update{Path: "projectName", Value: *p.ProjectName})
	}
	if p.Status != nil {
		out = append(out, firestore.Update{Path: "status", Value: *p.Status})
	}
	if p.ProjectType != nil {
		out = append(out, firestore.Update{Path: "projectType", Value: *p.ProjectType})
	}
	if p.Region != nil {
		out = append(out, firestore.Update{Path: "region", Value: *p.Region})
	}
	if p.PreferredStores != nil {
		out = append(out, firestore.Update{Path: "preferredStores", Value: *p.PreferredStores})
	}
	if p.GeneratedProjectID != nil {
		out = append(out, firestore.Update{Path: "generatedProjectId", Value: *p.GeneratedProjectID})
	}
	if p.ErrorLog != nil {
		out = append(out, firestore.Update{Path: "errorLog", Value: *p.ErrorLog})
	}
	if p.ParentID != nil {
		out = append(out, firestore.Update{Path: "parentId", Value: *p.ParentID})
	}
	out = append(out, firestore.Update{Path: "updatedAt", Value: firestore.ServerTimestamp})
	return out
}

// IsEmpty reports whether the patch carries no field changes.
func (p ContextPatch) IsEmpty() bool {
	return p.DescriptionItems == nil && p.Location == nil && p.Committente == nil
}

func (p SessionPatch) IsEmpty() bool {
	return p.ProjectName == nil && p.Status == nil && p.ProjectType == nil &&
		p.Region == nil && p.PreferredStores == nil && p.GeneratedProjectID == nil &&
		p.ErrorLog == nil && p.ParentID == nil
}
