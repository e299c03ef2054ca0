package lookup

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nemf/photo-review/internal/models"
)

// Repository queries the MySQL mirror of the Mushroom Observer names and
// locations tables. It is read-only.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repository over db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SearchLocations finds locations whose name matches q as a substring.
func (r *Repository) SearchLocations(ctx context.Context, q string, limit int) ([]models.LocationRef, error) {
	query := `
		SELECT id, name
		FROM locations
		WHERE name LIKE ?
		ORDER BY name
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, "%"+q+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search locations: %w", err)
	}
	defer rows.Close()

	var out []models.LocationRef
	for rows.Next() {
		var loc models.LocationRef
		if err := rows.Scan(&loc.ID, &loc.Name); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locations: %w", err)
	}
	return out, nil
}

// SearchNames finds taxon names whose text name matches q as a substring.
// Deprecated synonyms are excluded.
func (r *Repository) SearchNames(ctx context.Context, q string, limit int) ([]models.NameRef, error) {
	query := `
		SELECT id, text_name, COALESCE(author, '')
		FROM names
		WHERE text_name LIKE ? AND deprecated = 0
		ORDER BY text_name
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, "%"+q+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search names: %w", err)
	}
	defer rows.Close()

	var out []models.NameRef
	for rows.Next() {
		var n models.NameRef
		if err := rows.Scan(&n.ID, &n.TextName, &n.Author); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate names: %w", err)
	}
	return out, nil
}
