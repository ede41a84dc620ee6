package declaration_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hireline/internal/declaration"
	"hireline/internal/domain"
)

func fixture(nKetentuan, nSanksi int) domain.Checklist {
	c := domain.Checklist{FinalDeclaration: domain.ChecklistItem{ID: "final", Text: "I declare"}}
	for i := 1; i <= nKetentuan; i++ {
		c.Ketentuan = append(c.Ketentuan, domain.ChecklistItem{ID: fmt.Sprintf("k%d", i), Text: fmt.Sprintf("rule %d", i)})
	}
	for i := 1; i <= nSanksi; i++ {
		c.Sanksi = append(c.Sanksi, domain.ChecklistItem{ID: fmt.Sprintf("s%d", i), Text: fmt.Sprintf("sanction %d", i)})
	}
	return c
}

func TestValidateAllChecked(t *testing.T) {
	tpl := fixture(12, 6)
	c := declaration.Checked(tpl, declaration.AllIDs(tpl)...)
	assert.NoError(t, declaration.Validate(c))
}

func TestValidateNothingChecked(t *testing.T) {
	tpl := fixture(2, 1)
	err := declaration.Validate(tpl)
	var ma *domain.MissingAcknowledgementsError
	require.ErrorAs(t, err, &ma)
	assert.Equal(t, []string{"k1", "k2", "s1", "final"}, ma.IDs)
}

// For every item position, leaving exactly that one unchecked reports exactly that id.
func TestValidateExactlyOneUnchecked(t *testing.T) {
	for _, shape := range [][2]int{{1, 0}, {0, 1}, {3, 2}, {12, 6}} {
		tpl := fixture(shape[0], shape[1])
		ids := declaration.AllIDs(tpl)
		for i, skip := range ids {
			rest := append(append([]string{}, ids[:i]...), ids[i+1:]...)
			err := declaration.Validate(declaration.Checked(tpl, rest...))
			var ma *domain.MissingAcknowledgementsError
			require.ErrorAs(t, err, &ma, "skip %s", skip)
			assert.Equal(t, []string{skip}, ma.IDs)
		}
	}
}

func TestValidateFinalDeclarationOnly(t *testing.T) {
	c := domain.Checklist{FinalDeclaration: domain.ChecklistItem{ID: "final"}}
	err := declaration.Validate(c)
	assert.Equal(t, domain.KindMissingAcknowledgements, domain.Kind(err))
	c.FinalDeclaration.Checked = true
	assert.NoError(t, declaration.Validate(c))
}

func TestApplyKeepsTemplateText(t *testing.T) {
	tpl := fixture(2, 1)
	tpl.Ketentuan[0].SubItems = []string{"a", "b"}
	submitted := domain.Checklist{
		Ketentuan: []domain.ChecklistItem{
			{ID: "k1", Text: "tampered", Checked: true},
			{ID: "k9", Checked: true},
		},
		FinalDeclaration: domain.ChecklistItem{ID: "final", Checked: true},
	}
	out := declaration.Apply(tpl, submitted)
	assert.Equal(t, "rule 1", out.Ketentuan[0].Text)
	assert.Equal(t, []string{"a", "b"}, out.Ketentuan[0].SubItems)
	assert.True(t, out.Ketentuan[0].Checked)
	assert.False(t, out.Ketentuan[1].Checked)
	assert.True(t, out.FinalDeclaration.Checked)
	assert.False(t, tpl.Ketentuan[0].Checked, "template must not be mutated")

	var ma *domain.MissingAcknowledgementsError
	require.ErrorAs(t, declaration.Validate(out), &ma)
	assert.Equal(t, []string{"k2", "s1"}, ma.IDs)
}
