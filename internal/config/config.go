package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"hireline/internal/domain"
)

// Config models hireline.yml.
type Config struct {
	Tenant struct {
		ID string `yaml:"id"`
	} `yaml:"tenant"`
	Onboarding struct {
		LinkTTL       time.Duration `yaml:"link_ttl"`
		PublicBaseURL string        `yaml:"public_base_url"`
	} `yaml:"onboarding"`
	Documents struct {
		MaxBytes int64               `yaml:"max_bytes"`
		Allowed  map[string][]string `yaml:"allowed"`
		Required []string            `yaml:"required"`
	} `yaml:"documents"`
	OCR         OCRConfig   `yaml:"ocr"`
	Declaration Declaration `yaml:"declaration"`

	EmploymentTypes []string `yaml:"employment_types"`
	RBAC            struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
	Collaborators struct {
		Contract      ContractConfig       `yaml:"contract"`
		Notifications []NotificationConfig `yaml:"notifications"`
	} `yaml:"collaborators"`
}

type OCRConfig struct {
	URL         string        `yaml:"url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	RejectBelow float64       `yaml:"reject_below"`
	ReviewBelow float64       `yaml:"review_below"`
}

// Declaration is the tenant's acknowledgement checklist template.
type Declaration struct {
	Ketentuan []domain.ChecklistItem `yaml:"ketentuan"`
	Sanksi    []domain.ChecklistItem `yaml:"sanksi"`
	Final     domain.ChecklistItem   `yaml:"final"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type ContractConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type NotificationConfig struct {
	URL     string        `yaml:"url"`
	Events  []string      `yaml:"events"`
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
	Enabled *bool         `yaml:"enabled"`
}

// Checklist returns a fresh unchecked copy of the declaration template.
func (c *Config) Checklist() domain.Checklist {
	cl := domain.Checklist{
		Ketentuan:        c.Declaration.Ketentuan,
		Sanksi:           c.Declaration.Sanksi,
		FinalDeclaration: c.Declaration.Final,
	}
	cl = cl.Clone()
	for i := range cl.Ketentuan {
		cl.Ketentuan[i].Checked = false
	}
	for i := range cl.Sanksi {
		cl.Sanksi[i].Checked = false
	}
	cl.FinalDeclaration.Checked = false
	return cl
}

// AllowedMIME returns the allow-list for a document kind.
func (c *Config) AllowedMIME(kind domain.DocumentKind) []string {
	return c.Documents.Allowed[string(kind)]
}

// RequiredDocuments returns the kinds a candidate must upload before submitting.
func (c *Config) RequiredDocuments() []domain.DocumentKind {
	out := make([]domain.DocumentKind, 0, len(c.Documents.Required))
	for _, k := range c.Documents.Required {
		out = append(out, domain.DocumentKind(k))
	}
	return out
}

// RolePermissions resolves roles to the union of their permissions, in first-seen order.
func (c *Config) RolePermissions(roles []string) []string {
	var out []string
	for _, r := range roles {
		role, ok := c.RBAC.Roles[r]
		if !ok {
			continue
		}
		for _, p := range role.Permissions {
			if !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with hl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Tenant.ID == "" {
		return fmt.Errorf("config.tenant.id is required")
	}
	if c.Onboarding.LinkTTL <= 0 {
		return fmt.Errorf("config.onboarding.link_ttl must be positive")
	}
	if c.Documents.MaxBytes <= 0 {
		return fmt.Errorf("config.documents.max_bytes must be positive")
	}
	for kind, mimes := range c.Documents.Allowed {
		if _, ok := domain.ParseDocumentKind(kind); !ok {
			return fmt.Errorf("config.documents.allowed has unknown kind %s", kind)
		}
		if len(mimes) == 0 {
			return fmt.Errorf("config.documents.allowed.%s is empty", kind)
		}
	}
	for _, kind := range domain.DocumentKinds {
		if len(c.Documents.Allowed[string(kind)]) == 0 {
			return fmt.Errorf("config.documents.allowed.%s is required", kind)
		}
	}
	for _, kind := range c.Documents.Required {
		if _, ok := domain.ParseDocumentKind(kind); !ok {
			return fmt.Errorf("config.documents.required has unknown kind %s", kind)
		}
	}
	if c.OCR.Timeout < 0 {
		return fmt.Errorf("config.ocr.timeout must not be negative")
	}
	for name, v := range map[string]float64{"reject_below": c.OCR.RejectBelow, "review_below": c.OCR.ReviewBelow} {
		if v < 0 || v > 1 {
			return fmt.Errorf("config.ocr.%s must be within [0,1]", name)
		}
	}
	if c.OCR.RejectBelow > c.OCR.ReviewBelow {
		return fmt.Errorf("config.ocr.reject_below must not exceed review_below")
	}
	if err := c.Declaration.validate(); err != nil {
		return err
	}
	if len(c.EmploymentTypes) == 0 {
		return fmt.Errorf("config.employment_types is required")
	}
	for roleID, role := range c.RBAC.Roles {
		if roleID == "" {
			return fmt.Errorf("config.rbac.roles contains empty role id")
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
		}
	}
	for i, n := range c.Collaborators.Notifications {
		if strings.TrimSpace(n.URL) == "" {
			return fmt.Errorf("config.collaborators.notifications[%d].url is required", i)
		}
	}
	return nil
}

func (d Declaration) validate() error {
	seen := map[string]bool{}
	items := append(append(slices.Clone(d.Ketentuan), d.Sanksi...), d.Final)
	for _, it := range items {
		if it.ID == "" {
			return fmt.Errorf("config.declaration has an item without id")
		}
		if strings.TrimSpace(it.Text) == "" {
			return fmt.Errorf("config.declaration item %s has no text", it.ID)
		}
		if seen[it.ID] {
			return fmt.Errorf("config.declaration has duplicate id %s", it.ID)
		}
		seen[it.ID] = true
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "hireline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(tenantID string) string {
	return fmt.Sprintf(defaultTemplate, tenantID)
}

// LoadOptional falls back to Default(tenantID) when the config file does not exist.
func LoadOptional(workspace, tenantID string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(tenantID), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a tenant.
func Default(tenantID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(tenantID))).Decode(&cfg)
	cfg.Tenant.ID = tenantID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `tenant:
  id: %s

onboarding:
  link_ttl: 720h
  public_base_url: http://localhost:8080/onboarding

documents:
  max_bytes: 5242880
  allowed:
    ktp: [image/jpeg, image/png, image/webp]
    kk: [image/jpeg, image/png, image/webp, application/pdf]
    skck: [image/jpeg, image/png, image/webp, application/pdf]
  required: [ktp, kk]

ocr:
  url: ""
  timeout: 15s
  reject_below: 0.5
  review_below: 0.6

declaration:
  ketentuan:
    - id: k1
      text: "Data yang saya isi adalah benar dan dapat dipertanggungjawabkan"
    - id: k2
      text: "Saya bersedia mematuhi peraturan perusahaan dan penempatan"
    - id: k3
      text: "Saya bersedia ditempatkan sesuai kebutuhan klien"
    - id: k4
      text: "Saya bersedia menjalani masa percobaan sesuai kontrak"
    - id: k5
      text: "Saya menjaga kerahasiaan data perusahaan dan klien"
    - id: k6
      text: "Saya hadir tepat waktu sesuai jadwal kerja"
      sub_items:
        - "Keterlambatan dicatat dalam absensi"
        - "Absen tanpa keterangan dianggap mangkir"
    - id: k7
      text: "Saya menggunakan seragam dan atribut kerja yang ditentukan"
    - id: k8
      text: "Saya tidak merangkap pekerjaan di perusahaan lain tanpa izin"
    - id: k9
      text: "Saya bersedia mengikuti pelatihan yang diwajibkan"
    - id: k10
      text: "Saya menjaga aset dan peralatan kerja yang dipercayakan"
    - id: k11
      text: "Saya memberi pemberitahuan 30 hari sebelum mengundurkan diri"
    - id: k12
      text: "Gaji dibayarkan ke rekening atas nama saya sendiri"
  sanksi:
    - id: s1
      text: "Teguran lisan untuk pelanggaran ringan"
    - id: s2
      text: "Surat peringatan pertama"
    - id: s3
      text: "Surat peringatan kedua"
    - id: s4
      text: "Surat peringatan ketiga"
    - id: s5
      text: "Pemutusan hubungan kerja untuk pelanggaran berat"
      sub_items:
        - "Pencurian atau penggelapan"
        - "Pemalsuan data diri"
    - id: s6
      text: "Ganti rugi atas kerugian yang disebabkan kelalaian"
  final:
    id: final
    text: "Saya telah membaca, memahami, dan menyetujui seluruh ketentuan dan sanksi di atas"

employment_types: [pkwt, pkwtt, daily, internship]

rbac:
  roles:
    admin:
      description: "Full access"
      permissions:
        - candidate.create
        - candidate.read
        - candidate.transition
        - link.issue
        - form.read
        - form.review
        - form.reopen
        - hrd.read
        - hrd.decide
        - events.read
    recruiter:
      description: "Owns candidates up to HRD submission"
      permissions:
        - candidate.create
        - candidate.read
        - candidate.transition
        - link.issue
        - form.read
        - form.review
        - form.reopen
        - events.read
    hrd:
      description: "Approves or rejects onboarding submissions"
      permissions:
        - candidate.read
        - form.read
        - hrd.read
        - hrd.decide

collaborators:
  contract:
    url: ""
    timeout: 10s
  notifications: []
`
