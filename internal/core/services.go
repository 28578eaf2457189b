package core

// Services bundles the Postgres-backed stores used by the worker.
type Services struct {
	Settings  *SettingsService
	Resources *ResourceService
	Ledger    *LedgerService
}

func NewServices(db DB) *Services {
	return &Services{
		Settings:  NewSettingsService(db),
		Resources: NewResourceService(db),
		Ledger:    NewLedgerService(db),
	}
}
