package domain

import (
	"slices"
	"strings"
)

// FormField names a patchable onboarding form column.
type FormField string

const (
	FieldIDNumber              FormField = "id_number"
	FieldFullName              FormField = "full_name"
	FieldAddress               FormField = "address"
	FieldDomicile              FormField = "domicile"
	FieldBirthPlace            FormField = "birth_place"
	FieldBirthDate             FormField = "birth_date"
	FieldGender                FormField = "gender"
	FieldReligion              FormField = "religion"
	FieldMaritalStatus         FormField = "marital_status"
	FieldBankName              FormField = "bank_name"
	FieldBankAccountNumber     FormField = "bank_account_number"
	FieldBankAccountHolder     FormField = "bank_account_holder"
	FieldNPWP                  FormField = "npwp"
	FieldEmergencyName         FormField = "emergency_name"
	FieldEmergencyRelationship FormField = "emergency_relationship"
	FieldEmergencyPhone        FormField = "emergency_phone"
	FieldEmergencyAddress      FormField = "emergency_address"
)

// FormFields is the patch whitelist. Values double as column names.
var FormFields = []FormField{
	FieldIDNumber, FieldFullName, FieldAddress, FieldDomicile, FieldBirthPlace, FieldBirthDate,
	FieldGender, FieldReligion, FieldMaritalStatus,
	FieldBankName, FieldBankAccountNumber, FieldBankAccountHolder, FieldNPWP,
	FieldEmergencyName, FieldEmergencyRelationship, FieldEmergencyPhone, FieldEmergencyAddress,
}

var (
	Genders         = []string{"male", "female"}
	MaritalStatuses = []string{"single", "married", "divorced", "widowed"}
)

// FormPatch is a partial set of field values. Last write wins per field.
type FormPatch map[FormField]string

// PatchFromMap converts loosely keyed input, rejecting unknown fields.
func PatchFromMap(m map[string]string) (FormPatch, error) {
	p := FormPatch{}
	for k, v := range m {
		f := FormField(k)
		if !slices.Contains(FormFields, f) {
			return nil, &ValidationError{Field: k, Message: "unknown form field"}
		}
		p[f] = v
	}
	return p, p.Validate()
}

func (p FormPatch) Validate() error {
	for f, v := range p {
		if !slices.Contains(FormFields, f) {
			return &ValidationError{Field: string(f), Message: "unknown form field"}
		}
		v = strings.TrimSpace(v)
		switch f {
		case FieldGender:
			if v != "" && !slices.Contains(Genders, v) {
				return &ValidationError{Field: string(f), Message: "must be one of " + strings.Join(Genders, ", ")}
			}
		case FieldMaritalStatus:
			if v != "" && !slices.Contains(MaritalStatuses, v) {
				return &ValidationError{Field: string(f), Message: "must be one of " + strings.Join(MaritalStatuses, ", ")}
			}
		}
	}
	return nil
}

// Fields returns the patch keys in whitelist order so generated SQL is stable.
func (p FormPatch) Fields() []FormField {
	out := make([]FormField, 0, len(p))
	for _, f := range FormFields {
		if _, ok := p[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Value reads a field from the form by its column name.
func (f OnboardingForm) Value(field FormField) string {
	switch field {
	case FieldIDNumber:
		return f.IDNumber
	case FieldFullName:
		return f.FullName
	case FieldAddress:
		return f.Address
	case FieldDomicile:
		return f.Domicile
	case FieldBirthPlace:
		return f.BirthPlace
	case FieldBirthDate:
		return f.BirthDate
	case FieldGender:
		return f.Gender
	case FieldReligion:
		return f.Religion
	case FieldMaritalStatus:
		return f.MaritalStatus
	case FieldBankName:
		return f.BankName
	case FieldBankAccountNumber:
		return f.BankAccountNumber
	case FieldBankAccountHolder:
		return f.BankAccountHolder
	case FieldNPWP:
		return f.NPWP
	case FieldEmergencyName:
		return f.EmergencyName
	case FieldEmergencyRelationship:
		return f.EmergencyRelationship
	case FieldEmergencyPhone:
		return f.EmergencyPhone
	case FieldEmergencyAddress:
		return f.EmergencyAddress
	}
	return ""
}
