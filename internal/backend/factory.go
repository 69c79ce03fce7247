package backend

import (
	"context"
	"fmt"

	"voxafi/internal/auth"
	authmem "voxafi/internal/auth/memory"
	authsb "voxafi/internal/auth/supabase"
	"voxafi/internal/config"
	applog "voxafi/internal/log"
	"voxafi/internal/sheets"
	gsheet "voxafi/internal/sheets/google"
	ledgermem "voxafi/internal/sheets/memory"
	"voxafi/internal/store"
	"voxafi/internal/store/memory"
	"voxafi/internal/store/sqlite"
	sbstore "voxafi/internal/store/supabase"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(applog.ComponentStore)}
}

// Create builds the store selected by DATA_BACKEND together with its
// identity provider. Supabase provides both; every other store pairs with
// the in-memory provider.
func (f *DefaultFactory) Create(ctx context.Context, cfg *config.Config) (*Result, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.DataBackend {
	case config.BackendSQLite:
		st, err = sqlite.NewRepository(cfg.SQLiteDBPath)
	case config.BackendSupabase:
		st, err = sbstore.NewRepository(cfg.SupabaseURL, cfg.SupabaseKey)
	case config.BackendMemory:
		st = memory.New()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.DataBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize %s store: %w", cfg.DataBackend, err)
	}

	provider, err := f.authProvider(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	res := &Result{
		Store:   st,
		Auth:    provider,
		Ready:   readiness(st),
		Cleanup: st.Close,
	}
	if err := res.Ready(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("%s store not reachable: %w", cfg.DataBackend, err)
	}

	f.logger.Info("Initialized backend",
		"backend", cfg.DataBackend,
		"auth", fmt.Sprintf("%T", provider))
	return res, nil
}

func (f *DefaultFactory) authProvider(cfg *config.Config) (auth.Provider, error) {
	if cfg.DataBackend == config.BackendSupabase {
		p, err := authsb.New(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, fmt.Errorf("initialize supabase auth: %w", err)
		}
		return p, nil
	}
	return authmem.New(cfg.SessionTTL), nil
}

func readiness(st store.Store) func(ctx context.Context) error {
	p, ok := st.(pinger)
	if !ok {
		return func(context.Context) error { return nil }
	}
	return p.Ping
}

// NewLedger returns the Google Sheets mirror when a spreadsheet is
// configured, and an in-memory ledger otherwise.
func NewLedger(ctx context.Context, cfg *config.Config, logger *applog.Logger) (sheets.LedgerWriter, error) {
	if !cfg.LedgerEnabled() {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, mirroring to an in-memory ledger")
		return ledgermem.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize Google Sheets ledger: %w", err)
	}
	logger.Info("Initialized Google Sheets ledger",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)
	return client, nil
}
