package ocr

import (
	"strings"
	"time"

	"hireline/internal/domain"
)

// Raw KTP keys seen from extraction providers, most specific first.
var ktpAliases = map[domain.FormField][]string{
	domain.FieldIDNumber:   {"nik", "id_number", "no_ktp"},
	domain.FieldFullName:   {"nama", "full_name", "name"},
	domain.FieldBirthPlace: {"tempat_lahir", "birth_place"},
	domain.FieldBirthDate:  {"tanggal_lahir", "tgl_lahir", "birth_date"},
}

var genderValues = map[string]string{
	"LAKI-LAKI": "male",
	"LAKI LAKI": "male",
	"LAKI":      "male",
	"L":         "male",
	"MALE":      "male",
	"PEREMPUAN": "female",
	"WANITA":    "female",
	"P":         "female",
	"FEMALE":    "female",
}

var maritalValues = map[string]string{
	"BELUM KAWIN": "single",
	"KAWIN":       "married",
	"CERAI HIDUP": "divorced",
	"CERAI MATI":  "widowed",
	"SINGLE":      "single",
	"MARRIED":     "married",
	"DIVORCED":    "divorced",
	"WIDOWED":     "widowed",
}

var birthDateLayouts = []string{"02-01-2006", "02/01/2006", "02.01.2006", "2006-01-02"}

// NormalizeKTP maps raw KTP extraction output onto canonical form fields.
// Fields that are absent or unparseable are left out of the patch.
func NormalizeKTP(raw map[string]string) domain.FormPatch {
	in := make(map[string]string, len(raw))
	for k, v := range raw {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.Join(strings.Fields(v), " ")
		if k != "" && v != "" {
			in[k] = v
		}
	}
	out := domain.FormPatch{}
	for field, keys := range ktpAliases {
		if v := first(in, keys...); v != "" {
			out[field] = v
		}
	}

	if place, date, ok := splitBirth(first(in, "tempat_tgl_lahir", "ttl", "birth")); ok {
		if _, set := out[domain.FieldBirthPlace]; !set && place != "" {
			out[domain.FieldBirthPlace] = place
		}
		if _, set := out[domain.FieldBirthDate]; !set && date != "" {
			out[domain.FieldBirthDate] = date
		}
	}
	if d, ok := out[domain.FieldBirthDate]; ok {
		if iso := parseBirthDate(d); iso != "" {
			out[domain.FieldBirthDate] = iso
		} else {
			delete(out, domain.FieldBirthDate)
		}
	}

	if g, ok := genderValues[strings.ToUpper(first(in, "jenis_kelamin", "gender", "sex"))]; ok {
		out[domain.FieldGender] = g
	}
	if m, ok := maritalValues[strings.ToUpper(first(in, "status_perkawinan", "marital_status"))]; ok {
		out[domain.FieldMaritalStatus] = m
	}
	if r := first(in, "agama", "religion"); r != "" {
		out[domain.FieldReligion] = strings.ToLower(r)
	}
	if a := address(in); a != "" {
		out[domain.FieldAddress] = a
	}
	if d := joinNonEmpty(", ", first(in, "kota", "kabupaten", "kota_kabupaten", "city"), first(in, "provinsi", "province")); d != "" {
		out[domain.FieldDomicile] = d
	}
	return out
}

func first(in map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := in[k]; v != "" {
			return v
		}
	}
	return ""
}

// splitBirth handles the composite "JAKARTA, 17-08-1990" form.
func splitBirth(v string) (place, date string, ok bool) {
	if v == "" {
		return "", "", false
	}
	idx := strings.LastIndex(v, ",")
	if idx < 0 {
		if parseBirthDate(v) != "" {
			return "", v, true
		}
		return v, "", true
	}
	return strings.TrimSpace(v[:idx]), strings.TrimSpace(v[idx+1:]), true
}

func parseBirthDate(v string) string {
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

func address(in map[string]string) string {
	street := first(in, "alamat", "address")
	var rtrw string
	if v := first(in, "rt_rw", "rtrw"); v != "" {
		rtrw = "RT/RW " + v
	}
	var kel, kec string
	if v := first(in, "kel_desa", "kelurahan", "desa"); v != "" {
		kel = "KEL. " + v
	}
	if v := first(in, "kecamatan"); v != "" {
		kec = "KEC. " + v
	}
	return joinNonEmpty(", ", street, rtrw, kel, kec)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
