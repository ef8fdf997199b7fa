package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"finitefield.org/trademark-web/internal/backup"
	"finitefield.org/trademark-web/internal/catalog"
	"finitefield.org/trademark-web/internal/leads"
	"finitefield.org/trademark-web/internal/pricing"
	"finitefield.org/trademark-web/internal/wizard"
)

// ErrNotFound is returned when neither the backend nor the backup knows the search.
var ErrNotFound = errors.New("verification: search not found")

// Source tells where a view's data came from.
type Source string

const (
	SourceBackend Source = "backend"
	SourceBackup  Source = "backup"
)

// Lookup fetches a lead from the backend.
type Lookup interface {
	Lookup(ctx context.Context, searchID string) (leads.Record, error)
}

// View is a verified search ready for rendering.
type View struct {
	SearchID    string
	Source      Source
	Status      leads.Status
	Form        wizard.FormState
	Estimate    *pricing.Estimate
	Skipped     []string
	SubmittedAt time.Time
}

// Resolver verifies a link and loads the search behind it.
type Resolver struct {
	Signer  *Signer
	Lookup  Lookup
	Backups backup.Store
	Catalog *catalog.Catalog
	Logger  *zap.Logger
}

// Resolve checks token for searchID, then loads the lead from the backend,
// falling back to the local backup.
func (r *Resolver) Resolve(ctx context.Context, searchID, token string) (View, error) {
	searchID = strings.TrimSpace(searchID)
	if searchID == "" || strings.TrimSpace(token) == "" {
		return View{}, ErrInvalidToken
	}
	if _, err := r.Signer.Verify(token, searchID); err != nil {
		return View{}, err
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if r.Lookup != nil {
		rec, err := r.Lookup.Lookup(ctx, searchID)
		if err == nil {
			form, ferr := rec.Form()
			if ferr == nil {
				return r.view(searchID, SourceBackend, rec.Status, form, rec.CreatedAt), nil
			}
			logger.Warn("backend lead has unreadable search data", zap.String("search_id", searchID), zap.Error(ferr))
		} else {
			logger.Warn("backend lookup failed; trying local backup", zap.String("search_id", searchID), zap.Error(err))
		}
	}

	if r.Backups == nil {
		return View{}, ErrNotFound
	}
	snap, err := r.Backups.Get(ctx, searchID)
	if errors.Is(err, backup.ErrNotFound) {
		return View{}, ErrNotFound
	}
	if err != nil {
		return View{}, fmt.Errorf("verification: load backup: %w", err)
	}
	var form wizard.FormState
	if err := json.Unmarshal(snap.FormData, &form); err != nil {
		return View{}, fmt.Errorf("verification: decode backup: %w", err)
	}
	form.Normalize()
	return r.view(searchID, SourceBackup, leads.StatusPending, form, snap.Timestamp), nil
}

func (r *Resolver) view(id string, src Source, status leads.Status, form wizard.FormState, at time.Time) View {
	est, skipped := pricing.FromLines(r.Catalog, form.Currency, form.Countries)
	return View{
		SearchID:    id,
		Source:      src,
		Status:      status,
		Form:        form,
		Estimate:    est,
		Skipped:     skipped,
		SubmittedAt: at,
	}
}
