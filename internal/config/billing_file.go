package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/edvin/hosting-billing/internal/model"
)

// billingFile is the on-disk layout of BILLING_CONFIG_FILE.
type billingFile struct {
	Billing model.BillingSettings `yaml:"billing"`
}

// BillingFile serves billing configuration from a YAML file. The file is
// re-read on every call so edits take effect on the next cycle.
type BillingFile struct {
	path string
}

func NewBillingFile(path string) *BillingFile {
	return &BillingFile{path: path}
}

// BillingConfig reads and normalizes the billing section of the file.
func (f *BillingFile) BillingConfig(_ context.Context) (model.BillingConfig, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return model.BillingConfig{}, fmt.Errorf("read billing config %s: %w", f.path, err)
	}
	return ParseBillingConfig(data)
}

// ParseBillingConfig parses YAML billing settings from raw bytes.
func ParseBillingConfig(data []byte) (model.BillingConfig, error) {
	var bf billingFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return model.BillingConfig{}, fmt.Errorf("parse billing config: %w", err)
	}
	return bf.Billing.Normalize()
}
