package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Organization is a tenant of the auto-reply service.
type Organization struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Slug             string    `json:"slug"`
	AutoReplyEnabled bool      `json:"auto_reply_enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// OrgStore persists organizations and their auto-reply enablement flag.
type OrgStore struct {
	db *sql.DB
}

func NewOrgStore(db *sql.DB) *OrgStore {
	return &OrgStore{db: db}
}

func (s *OrgStore) Create(ctx context.Context, name, slug string) (*Organization, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("org store is not configured")
	}
	name = strings.TrimSpace(name)
	slug = strings.TrimSpace(strings.ToLower(slug))
	if name == "" {
		return nil, validationErrorf("name is required")
	}
	if slug == "" {
		return nil, validationErrorf("slug is required")
	}

	row := s.db.QueryRowContext(
		ctx,
		`INSERT INTO organizations (name, slug)
		 VALUES ($1, $2)
		 RETURNING id, name, slug, auto_reply_enabled, created_at, updated_at`,
		name,
		slug,
	)
	org, err := scanOrganization(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	return &org, nil
}

func (s *OrgStore) GetByID(ctx context.Context, orgID string) (*Organization, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("org store is not configured")
	}
	orgID, err := requireUUID(orgID, "org_id")
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, slug, auto_reply_enabled, created_at, updated_at
		 FROM organizations
		 WHERE id = $1`,
		orgID,
	)
	org, err := scanOrganization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	return &org, nil
}

// AutoReplyEnabled reports whether the org's auto-reply feature is on.
// A missing org counts as disabled.
func (s *OrgStore) AutoReplyEnabled(ctx context.Context, orgID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("org store is not configured")
	}
	orgID, err := requireUUID(orgID, "org_id")
	if err != nil {
		return false, err
	}

	var enabled bool
	err = s.db.QueryRowContext(
		ctx,
		`SELECT auto_reply_enabled FROM organizations WHERE id = $1`,
		orgID,
	).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read auto-reply enablement: %w", err)
	}
	return enabled, nil
}

func (s *OrgStore) SetAutoReplyEnabled(ctx context.Context, orgID string, enabled bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("org store is not configured")
	}
	orgID, err := requireUUID(orgID, "org_id")
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(
		ctx,
		`UPDATE organizations
		 SET auto_reply_enabled = $2,
		     updated_at = NOW()
		 WHERE id = $1`,
		orgID,
		enabled,
	)
	if err != nil {
		return fmt.Errorf("failed to update auto-reply enablement: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read enablement update result: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrganization(scanner interface{ Scan(...any) error }) (Organization, error) {
	var org Organization
	err := scanner.Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.AutoReplyEnabled,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return Organization{}, err
	}
	return org, nil
}
