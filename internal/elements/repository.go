package elements

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"mapdna/internal/geo"
	"mapdna/platform/apperr"
	"mapdna/platform/logger"
)

// Querier is the subset of *pgxpool.Pool the repository reads through.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repo implements Source over the CMS PostgreSQL schema. It never writes.
type Repo struct {
	pool Querier
	log  *logger.Logger
}

// NewRepository creates a new element repository.
func NewRepository(pool Querier, log *logger.Logger) *Repo {
	return &Repo{pool: pool, log: log}
}

// Compile-time check that Repo implements Source.
var _ Source = (*Repo)(nil)

// GetElement retrieves a single live element with its layout and address values.
func (r *Repo) GetElement(ctx context.Context, id int64) (*Element, error) {
	items, err := r.GetElements(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperr.NotFound("element " + strconv.FormatInt(id, 10) + " not found")
	}
	return items[0], nil
}

// GetElements retrieves the live elements among ids, in the order requested.
func (r *Repo) GetElements(ctx context.Context, ids []int64) ([]*Element, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	unique := sortedIDs(ids)

	byID, err := r.loadLayouts(ctx, unique)
	if err != nil {
		r.log.DatabaseError("get_elements", err)
		return nil, err
	}
	if len(byID) == 0 {
		return nil, nil
	}
	if err := r.loadAddresses(ctx, unique, byID); err != nil {
		r.log.DatabaseError("get_elements", err)
		return nil, err
	}

	out := make([]*Element, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *Repo) loadLayouts(ctx context.Context, ids []int64) (map[int64]*Element, error) {
	query := `
		SELECT e.id, e.type, COALESCE(e.title, ''), f.id, f.handle, f.name, f.type
		FROM elements e
		LEFT JOIN field_layout_fields lf ON lf.layout_id = e.field_layout_id
		LEFT JOIN fields f ON f.id = lf.field_id
		WHERE e.id = ANY($1) AND e.date_deleted IS NULL
		ORDER BY e.id, lf.sort_order`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query element layouts: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*Element, len(ids))
	for rows.Next() {
		var (
			elementID int64
			kind      string
			title     string
			fieldID   *int64
			handle    *string
			name      *string
			fieldType *string
		)
		if err := rows.Scan(&elementID, &kind, &title, &fieldID, &handle, &name, &fieldType); err != nil {
			return nil, fmt.Errorf("scan element layout: %w", err)
		}

		e, ok := byID[elementID]
		if !ok {
			e = &Element{ID: elementID, Kind: kind, Title: title}
			byID[elementID] = e
		}
		if fieldID == nil || handle == nil {
			continue
		}
		f := Field{ID: *fieldID, Handle: *handle}
		if name != nil {
			f.Name = *name
		}
		if fieldType != nil {
			f.Type = *fieldType
		}
		e.Fields = append(e.Fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate element layouts: %w", err)
	}
	return byID, nil
}

func (r *Repo) loadAddresses(ctx context.Context, ids []int64, byID map[int64]*Element) error {
	query := `
		SELECT id, element_id, field_id, formatted, raw::text, name, street1, street2, city, state, zip,
		       neighborhood, county, country, mapbox_id, lng, lat, zoom
		FROM mapbox_addresses
		WHERE element_id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("query addresses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec geo.Record
		var raw *string
		if err := rows.Scan(
			&rec.ID, &rec.OwnerID, &rec.FieldID, &rec.Formatted, &raw, &rec.Name, &rec.Street1, &rec.Street2,
			&rec.City, &rec.State, &rec.Zip, &rec.Neighborhood, &rec.County, &rec.Country, &rec.ProviderID,
			&rec.Lng, &rec.Lat, &rec.Zoom,
		); err != nil {
			return fmt.Errorf("scan address: %w", err)
		}
		if raw != nil {
			rec.Raw = []byte(*raw)
		}

		e, ok := byID[rec.OwnerID]
		if !ok {
			continue
		}
		for i := range e.Fields {
			if e.Fields[i].ID == rec.FieldID && e.Fields[i].IsAddress() {
				e.Fields[i].Address = geo.FromRecord(rec)
				break
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate addresses: %w", err)
	}
	return nil
}

// FieldRegistry loads every address field handle, keyed by field id.
func (r *Repo) FieldRegistry(ctx context.Context) (FieldRegistry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, handle FROM fields WHERE type = $1`, FieldTypeAddress)
	if err != nil {
		r.log.DatabaseError("field_registry", err)
		return nil, fmt.Errorf("query address fields: %w", err)
	}
	defer rows.Close()

	reg := FieldRegistry{}
	for rows.Next() {
		var id int64
		var handle string
		if err := rows.Scan(&id, &handle); err != nil {
			r.log.DatabaseError("field_registry", err)
			return nil, fmt.Errorf("scan address field: %w", err)
		}
		reg[id] = handle
	}
	if err := rows.Err(); err != nil {
		r.log.DatabaseError("field_registry", err)
		return nil, err
	}
	return reg, nil
}
