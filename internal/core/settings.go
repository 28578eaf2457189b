package core

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/hosting-billing/internal/model"
)

// SettingsService reads and writes the platform_config key/value table. It is
// the default source of billing configuration.
type SettingsService struct {
	db DB
}

func NewSettingsService(db DB) *SettingsService {
	return &SettingsService{db: db}
}

func (s *SettingsService) Get(ctx context.Context, key string) (*model.Setting, error) {
	var st model.Setting
	err := s.db.QueryRow(ctx,
		"SELECT key, value FROM platform_config WHERE key = $1", key,
	).Scan(&st.Key, &st.Value)
	if err != nil {
		return nil, fmt.Errorf("get setting %q: %w", key, notFound(err))
	}
	return &st, nil
}

// List returns every setting whose key starts with prefix.
func (s *SettingsService) List(ctx context.Context, prefix string) ([]model.Setting, error) {
	rows, err := s.db.Query(ctx,
		"SELECT key, value FROM platform_config WHERE starts_with(key, $1) ORDER BY key", prefix)
	if err != nil {
		return nil, fmt.Errorf("list settings %q: %w", prefix, err)
	}
	defer rows.Close()

	var settings []model.Setting
	for rows.Next() {
		var st model.Setting
		if err := rows.Scan(&st.Key, &st.Value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings = append(settings, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return settings, nil
}

func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	_, err := s.db.Exec(ctx, upsertSetting, key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

const upsertSetting = `INSERT INTO platform_config (key, value, updated_at) VALUES ($1, $2, now())
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

// BillingConfig loads the billing.* settings and normalizes them. Missing keys
// take the model defaults.
func (s *SettingsService) BillingConfig(ctx context.Context) (model.BillingConfig, error) {
	settings, err := s.List(ctx, "billing.")
	if err != nil {
		return model.BillingConfig{}, err
	}

	var raw model.BillingSettings
	for _, st := range settings {
		if err := applyBillingSetting(&raw, st); err != nil {
			return model.BillingConfig{}, err
		}
	}
	return raw.Normalize()
}

// SaveBillingConfig writes every billing setting in one transaction.
func (s *SettingsService) SaveBillingConfig(ctx context.Context, cfg model.BillingConfig) error {
	values := [][2]string{
		{model.SettingBillingEnabled, strconv.FormatBool(cfg.Enabled)},
		{model.SettingBillingIntervalMinutes, strconv.Itoa(cfg.IntervalMinutes)},
		{model.SettingBillingRatePerGBHour, cfg.RatePerGBHour.String()},
		{model.SettingBillingAutoSuspend, strconv.FormatBool(cfg.AutoSuspend)},
		{model.SettingBillingAutoResume, strconv.FormatBool(cfg.AutoResume)},
	}
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		for _, kv := range values {
			if _, err := tx.Exec(ctx, upsertSetting, kv[0], kv[1]); err != nil {
				return fmt.Errorf("set setting %q: %w", kv[0], err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save billing config: %w", err)
	}
	return nil
}

func applyBillingSetting(raw *model.BillingSettings, st model.Setting) error {
	invalid := func(err error) error {
		return fmt.Errorf("%w: %s=%q: %v", model.ErrInvalidBillingConfig, st.Key, st.Value, err)
	}
	switch st.Key {
	case model.SettingBillingEnabled:
		b, err := strconv.ParseBool(st.Value)
		if err != nil {
			return invalid(err)
		}
		raw.Enabled = &b
	case model.SettingBillingIntervalMinutes:
		n, err := strconv.Atoi(st.Value)
		if err != nil {
			return invalid(err)
		}
		raw.IntervalMinutes = &n
	case model.SettingBillingRatePerGBHour:
		v := st.Value
		raw.RatePerGBHour = &v
	case model.SettingBillingAutoSuspend:
		b, err := strconv.ParseBool(st.Value)
		if err != nil {
			return invalid(err)
		}
		raw.AutoSuspend = &b
	case model.SettingBillingAutoResume:
		b, err := strconv.ParseBool(st.Value)
		if err != nil {
			return invalid(err)
		}
		raw.AutoResume = &b
	}
	return nil
}
