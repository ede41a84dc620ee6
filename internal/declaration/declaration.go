// Package declaration enforces the onboarding acknowledgement checklist.
// Nothing here performs I/O.
package declaration

import "hireline/internal/domain"

// Validate returns nil when every item is checked, otherwise a
// *domain.MissingAcknowledgementsError listing the unchecked ids in display order.
func Validate(c domain.Checklist) error {
	var missing []string
	for _, it := range c.Items() {
		if !it.Checked {
			missing = append(missing, it.ID)
		}
	}
	if len(missing) > 0 {
		return &domain.MissingAcknowledgementsError{IDs: missing}
	}
	return nil
}

// Apply copies the checked flags of submitted onto a clone of template, matched by id.
// Item text, sub-items and order always come from template; unknown ids are ignored and
// template items absent from submitted stay unchecked.
func Apply(template, submitted domain.Checklist) domain.Checklist {
	checked := map[string]bool{}
	for _, it := range submitted.Items() {
		if it.Checked {
			checked[it.ID] = true
		}
	}
	out := template.Clone()
	for i := range out.Ketentuan {
		out.Ketentuan[i].Checked = checked[out.Ketentuan[i].ID]
	}
	for i := range out.Sanksi {
		out.Sanksi[i].Checked = checked[out.Sanksi[i].ID]
	}
	out.FinalDeclaration.Checked = checked[out.FinalDeclaration.ID]
	return out
}

// Checked builds a submission checklist with the given ids checked. Used by clients and tests.
func Checked(template domain.Checklist, ids ...string) domain.Checklist {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := template.Clone()
	for i := range out.Ketentuan {
		out.Ketentuan[i].Checked = want[out.Ketentuan[i].ID]
	}
	for i := range out.Sanksi {
		out.Sanksi[i].Checked = want[out.Sanksi[i].ID]
	}
	out.FinalDeclaration.Checked = want[out.FinalDeclaration.ID]
	return out
}

// AllIDs lists every item id of c in display order.
func AllIDs(c domain.Checklist) []string {
	items := c.Items()
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}
