package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-agency/internal/db"
)

// Project is the slice of a project an invoice needs.
type Project struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	ClientID *uuid.UUID
	Title    string
}

// ProjectLookup resolves projects owned by a tenant.
type ProjectLookup interface {
	FindProject(ctx context.Context, tenantID, projectID uuid.UUID) (Project, error)
}

// PGProjectLookup reads the projects table.
type PGProjectLookup struct {
	q db.DBTX
}

// NewPGProjectLookup builds a lookup over a pool.
func NewPGProjectLookup(q db.DBTX) *PGProjectLookup {
	return &PGProjectLookup{q: q}
}

func (l *PGProjectLookup) FindProject(ctx context.Context, tenantID, projectID uuid.UUID) (Project, error) {
	var p Project
	err := l.q.QueryRow(ctx, `SELECT id, tenant_id, client_id, title FROM projects WHERE id = $1 AND tenant_id = $2`,
		projectID, tenantID).Scan(&p.ID, &p.TenantID, &p.ClientID, &p.Title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrProjectNotFound
		}
		return Project{}, fmt.Errorf("find project: %w", err)
	}
	return p, nil
}
