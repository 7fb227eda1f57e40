package sites

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sudandp/paradigm-ifs-sub000/internal/platform/cache"
	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
)

// Directory serves the site directory with a Redis read-through cache.
type Directory struct {
	repo   Repository
	cache  *cache.Versioned
	logger *slog.Logger
}

// NewDirectory constructs a Directory. A nil cache reads straight through.
func NewDirectory(repo Repository, c *cache.Versioned, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{repo: repo, cache: c, logger: logger.With(slog.String("component", "sites"))}
}

// Organizations returns the active site directory.
func (d *Directory) Organizations(ctx context.Context) ([]Organization, error) {
	key, err := d.cache.BuildKey(ctx, "organizations")
	if err != nil {
		d.logger.Warn("site cache key", slog.Any("error", err))
		return d.repo.ListOrganizations(ctx)
	}
	var orgs []Organization
	err = d.cache.FetchJSON(ctx, key, &orgs, func(ctx context.Context) (any, error) {
		return d.repo.ListOrganizations(ctx)
	})
	return orgs, err
}

// Lookup finds a site by id.
func (d *Directory) Lookup(ctx context.Context, siteID string) (Organization, error) {
	orgs, err := d.Organizations(ctx)
	if err != nil {
		return Organization{}, err
	}
	siteID = strings.TrimSpace(siteID)
	for _, org := range orgs {
		if org.ID == siteID {
			return org, nil
		}
	}
	return Organization{}, shared.ErrNotFound
}

// FindByName resolves a site by its short or full name.
func (d *Directory) FindByName(ctx context.Context, name string) (Organization, error) {
	orgs, err := d.Organizations(ctx)
	if err != nil {
		return Organization{}, err
	}
	for _, org := range orgs {
		if org.Matches(name) {
			return org, nil
		}
	}
	return Organization{}, shared.ErrNotFound
}

// InvoiceDefaults returns the default contract terms of a site. Sites without
// configured terms get zero amounts.
func (d *Directory) InvoiceDefaults(ctx context.Context, siteID string) (InvoiceDefaults, error) {
	key, err := d.cache.BuildKey(ctx, "invoice-defaults", siteID)
	if err != nil {
		d.logger.Warn("site cache key", slog.Any("error", err))
		return d.loadDefaults(ctx, siteID)
	}
	var out InvoiceDefaults
	err = d.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return d.loadDefaults(ctx, siteID)
	})
	return out, err
}

func (d *Directory) loadDefaults(ctx context.Context, siteID string) (InvoiceDefaults, error) {
	defaults, err := d.repo.InvoiceDefaults(ctx, siteID)
	if errors.Is(err, shared.ErrNotFound) {
		return InvoiceDefaults{SiteID: siteID}, nil
	}
	return defaults, err
}

// Invalidate drops every cached directory entry.
func (d *Directory) Invalidate(ctx context.Context) error {
	return d.cache.Bump(ctx)
}
