package knowledge

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"personabot/internal/domain"
)

const (
	casesFile = "success_cases.yaml"
	faqFile   = "faq.yaml"
)

// loadDir reads the two knowledge source files and validates the records.
// Any schema violation aborts the load; a partially-valid snapshot is never
// served.
func loadDir(dir string) (*Snapshot, error) {
	var snap Snapshot

	if err := loadYAML(filepath.Join(dir, casesFile), &snap.Cases); err != nil {
		return nil, err
	}
	if err := loadYAML(filepath.Join(dir, faqFile), &snap.FAQs); err != nil {
		return nil, err
	}

	if err := validateCases(snap.Cases); err != nil {
		return nil, err
	}
	if err := validateFAQs(snap.FAQs); err != nil {
		return nil, err
	}
	return &snap, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func validateCases(cases []domain.SuccessCase) error {
	seen := make(map[string]bool, len(cases))
	for i, c := range cases {
		if c.ID == "" {
			return fmt.Errorf("success case %d: missing id", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("success case %s: duplicate id", c.ID)
		}
		seen[c.ID] = true
		if c.Title == "" || c.Points == "" {
			return fmt.Errorf("success case %s: missing required field", c.ID)
		}
		if err := validatePersonas(c.ID, c.Personas); err != nil {
			return err
		}
	}
	return nil
}

func validateFAQs(faqs []domain.FAQ) error {
	seen := make(map[string]bool, len(faqs))
	for i, f := range faqs {
		if f.ID == "" {
			return fmt.Errorf("faq %d: missing id", i)
		}
		if seen[f.ID] {
			return fmt.Errorf("faq %s: duplicate id", f.ID)
		}
		seen[f.ID] = true
		if f.Question == "" || f.Answer == "" {
			return fmt.Errorf("faq %s: missing required field", f.ID)
		}
		if err := validatePersonas(f.ID, f.Personas); err != nil {
			return err
		}
	}
	return nil
}

func validatePersonas(id string, ps []domain.Persona) error {
	for _, p := range ps {
		if _, ok := domain.ParsePersona(string(p)); !ok {
			return fmt.Errorf("%s: unknown persona %q", id, p)
		}
	}
	return nil
}

// WriteDefaults writes the built-in starter knowledge set into dir. Used by
// the init command so a fresh install has something to retrieve.
func WriteDefaults(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create knowledge dir: %w", err)
	}
	if err := writeYAML(filepath.Join(dir, casesFile), DefaultCases()); err != nil {
		return err
	}
	return writeYAML(filepath.Join(dir, faqFile), DefaultFAQs())
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}
