package record

import "strings"

// Edit is an owner correction to the submission payload. Nil fields are left unchanged.
type Edit struct {
	CommonName     *string
	ScientificName *string
	Description    *string
	Location       *Location
	Details        Details
	ImageRef       *string
}

// Empty reports whether the edit changes nothing.
func (e Edit) Empty() bool {
	return e.CommonName == nil && e.ScientificName == nil && e.Description == nil &&
		e.Location == nil && e.Details == nil && e.ImageRef == nil
}

// ApplyEdit returns rec with the edit applied. Only the owner may edit, and only
// while the record is local and not approved.
func ApplyEdit(rec Record, editorID string, e Edit) (Record, error) {
	if editorID == "" || editorID != rec.OwnerID {
		return Record{}, NewAuthorizationError(editorID, "edit "+IdentityKey(rec))
	}
	if !rec.IsLocalOnly() {
		return Record{}, NewValidationError("origin", "%s is synced; changes go through review", IdentityKey(rec))
	}
	if rec.Status == StatusApproved {
		return Record{}, NewValidationError("status", "%s is approved and can no longer be edited", IdentityKey(rec))
	}

	out := rec
	if e.CommonName != nil {
		out.CommonName = strings.TrimSpace(*e.CommonName)
	}
	if e.ScientificName != nil {
		out.ScientificName = strings.TrimSpace(*e.ScientificName)
	}
	if e.Description != nil {
		out.Description = *e.Description
	}
	if e.Location != nil {
		out.Location = *e.Location
	}
	if e.Details != nil {
		out.Details = e.Details
	}
	if e.ImageRef != nil {
		out.ImageRef = strings.TrimSpace(*e.ImageRef)
	}

	if err := Validate(out); err != nil {
		return Record{}, err
	}
	return out, nil
}
