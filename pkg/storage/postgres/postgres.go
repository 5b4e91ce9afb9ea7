// Package postgres provides a PostgreSQL implementation of transport.CompletionStore.
// It uses pgx/v5 for connection pooling and JSONB for the structured error column.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/monk-after-90s/llmbridge/pkg/api"
	"github.com/monk-after-90s/llmbridge/pkg/storage"
	"github.com/monk-after-90s/llmbridge/pkg/transport"
)

// Store is a PostgreSQL-backed CompletionStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements transport.CompletionStore at compile time.
var _ transport.CompletionStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// SaveCompletion persists a completion record.
func (s *Store) SaveCompletion(ctx context.Context, c *api.Completion) error {
	tenantID := storage.GetTenant(ctx)

	errorJSON, err := marshalError(c.Error)
	if err != nil {
		return err
	}

	var usagePrompt, usageCompletion, usageTotal int
	if c.Usage != nil {
		usagePrompt = c.Usage.PromptTokens
		usageCompletion = c.Usage.CompletionTokens
		usageTotal = c.Usage.TotalTokens
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO completions (
			id, tenant_id, status, model, text, finish_reason,
			usage_prompt_tokens, usage_completion_tokens, usage_total_tokens,
			error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		c.ID, tenantID, string(c.Status), c.Model, c.Text, string(c.FinishReason),
		usagePrompt, usageCompletion, usageTotal,
		nullJSON(errorJSON), c.CreatedAt,
	)

	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting completion: %w", err)
	}

	return nil
}

// UpdateCompletion replaces a previously saved record with its terminal state.
func (s *Store) UpdateCompletion(ctx context.Context, c *api.Completion) error {
	tenantID := storage.GetTenant(ctx)

	errorJSON, err := marshalError(c.Error)
	if err != nil {
		return err
	}

	var usagePrompt, usageCompletion, usageTotal int
	if c.Usage != nil {
		usagePrompt = c.Usage.PromptTokens
		usageCompletion = c.Usage.CompletionTokens
		usageTotal = c.Usage.TotalTokens
	}

	query := `
		UPDATE completions SET
			status = $1, text = $2, finish_reason = $3,
			usage_prompt_tokens = $4, usage_completion_tokens = $5, usage_total_tokens = $6,
			error = $7, updated_at = now()
		WHERE id = $8 AND deleted_at IS NULL
	`
	args := []any{
		string(c.Status), c.Text, string(c.FinishReason),
		usagePrompt, usageCompletion, usageTotal,
		nullJSON(errorJSON), c.ID,
	}

	if tenantID != "" {
		query += " AND tenant_id = $9"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating completion: %w", err)
	}

	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// GetCompletion retrieves a completion by ID, excluding soft-deleted records.
func (s *Store) GetCompletion(ctx context.Context, id string) (*api.Completion, error) {
	tenantID := storage.GetTenant(ctx)

	query := `
		SELECT id, status, model, text, finish_reason,
		       usage_prompt_tokens, usage_completion_tokens, usage_total_tokens,
		       error, created_at
		FROM completions
		WHERE id = $1 AND deleted_at IS NULL
	`
	args := []any{id}

	if tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	row := s.pool.QueryRow(ctx, query, args...)
	c, err := scanCompletion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying completion: %w", err)
	}

	return c, nil
}

// DeleteCompletion soft-deletes a completion by setting deleted_at.
func (s *Store) DeleteCompletion(ctx context.Context, id string) error {
	tenantID := storage.GetTenant(ctx)

	query := "UPDATE completions SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL"
	args := []any{time.Now(), id}

	if tenantID != "" {
		query += " AND tenant_id = $3"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting completion: %w", err)
	}

	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// ListCompletions returns a paginated list of stored completions.
func (s *Store) ListCompletions(ctx context.Context, opts transport.ListOptions) (*transport.CompletionList, error) {
	tenantID := storage.GetTenant(ctx)

	var conds []string
	var args []any
	argIdx := 1

	conds = append(conds, "deleted_at IS NULL")

	if tenantID != "" {
		conds = append(conds, fmt.Sprintf("tenant_id = $%d", argIdx))
		args = append(args, tenantID)
		argIdx++
	}

	if opts.Model != "" {
		conds = append(conds, fmt.Sprintf("model = $%d", argIdx))
		args = append(args, opts.Model)
		argIdx++
	}

	order := "DESC"
	if opts.Order == "asc" {
		order = "ASC"
	}

	if opts.After != "" {
		cmp := "<"
		if order == "ASC" {
			cmp = ">"
		}
		conds = append(conds, fmt.Sprintf(
			"(created_at, id) %s (SELECT created_at, id FROM completions WHERE id = $%d)",
			cmp, argIdx))
		args = append(args, opts.After)
		argIdx++
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT id, status, model, text, finish_reason,
		       usage_prompt_tokens, usage_completion_tokens, usage_total_tokens,
		       error, created_at
		FROM completions
		WHERE %s
		ORDER BY created_at %s, id %s
		LIMIT $%d
	`, strings.Join(conds, " AND "), order, order, argIdx)
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing completions: %w", err)
	}
	defer rows.Close()

	var comps []*api.Completion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning completion: %w", err)
		}
		comps = append(comps, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating completions: %w", err)
	}

	hasMore := len(comps) > limit
	if hasMore {
		comps = comps[:limit]
	}

	result := &transport.CompletionList{
		Object:  "list",
		Data:    comps,
		HasMore: hasMore,
	}
	if len(comps) > 0 {
		result.FirstID = comps[0].ID
		result.LastID = comps[len(comps)-1].ID
	}
	return result, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompletion(row rowScanner) (*api.Completion, error) {
	var c api.Completion
	var status, finishReason string
	var usagePrompt, usageCompletion, usageTotal int
	var errorJSON *[]byte

	err := row.Scan(
		&c.ID, &status, &c.Model, &c.Text, &finishReason,
		&usagePrompt, &usageCompletion, &usageTotal,
		&errorJSON, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Object = "completion"
	c.Status = api.CompletionStatus(status)
	c.FinishReason = api.FinishReason(finishReason)

	if usageTotal > 0 || usagePrompt > 0 || usageCompletion > 0 {
		c.Usage = &api.Usage{
			PromptTokens:     usagePrompt,
			CompletionTokens: usageCompletion,
			TotalTokens:      usageTotal,
		}
	}

	if errorJSON != nil {
		var apiErr api.APIError
		if err := json.Unmarshal(*errorJSON, &apiErr); err == nil {
			c.Error = &apiErr
		}
	}

	return &c, nil
}

// marshalError serializes a completion error for the JSONB column.
func marshalError(apiErr *api.APIError) ([]byte, error) {
	if apiErr == nil {
		return nil, nil
	}
	b, err := json.Marshal(apiErr)
	if err != nil {
		return nil, fmt.Errorf("marshaling error: %w", err)
	}
	return b, nil
}

// nullJSON converts nil/empty byte slices to nil for nullable JSONB columns.
func nullJSON(b []byte) *[]byte {
	if len(b) == 0 {
		return nil
	}
	return &b
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
