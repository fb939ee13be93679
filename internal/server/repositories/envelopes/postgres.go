package envelopes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

// PostgresRepository implements envelope storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const envelopeColumns = `id, secondary_id, legacy_id, type, title, external_id, visibility, status,
	user_id, team_id, folder_id, auth_options, created_at, updated_at, completed_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnvelope(row rowScanner) (*models.Envelope, error) {
	e := &models.Envelope{}
	var auth []byte
	if err := row.Scan(&e.ID, &e.SecondaryID, &e.LegacyID, &e.Type, &e.Title, &e.ExternalID, &e.Visibility, &e.Status,
		&e.UserID, &e.TeamID, &e.FolderID, &auth, &e.CreatedAt, &e.UpdatedAt, &e.CompletedAt, &e.DeletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	opts, err := models.UnmarshalAuthOptions(auth)
	if err != nil {
		return nil, fmt.Errorf("decode auth options: %w", err)
	}
	e.AuthOptions = opts
	return e, nil
}

// NextLegacyID increments the counter row of kind and returns the new value.
func (r *PostgresRepository) NextLegacyID(ctx context.Context, kind models.EnvelopeType) (int64, error) {
	query :=
		`UPDATE envelope_counters SET value = value + 1
		 WHERE kind = $1
		 RETURNING value
		 `

	var id int64
	if err := r.db.QueryRowContext(ctx, query, kind).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("no counter for kind %s: %w", kind, common.ErrorNotFound)
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

// Create inserts a new envelope row.
func (r *PostgresRepository) Create(ctx context.Context, e *models.Envelope) error {
	auth, err := models.MarshalAuthOptions(e.AuthOptions)
	if err != nil {
		return fmt.Errorf("encode auth options: %w", err)
	}
	query := `
		INSERT INTO envelopes (` + envelopeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	if _, err := r.db.ExecContext(ctx, query,
		e.ID, e.SecondaryID, e.LegacyID, e.Type, e.Title, e.ExternalID, e.Visibility, e.Status,
		e.UserID, e.TeamID, e.FolderID, string(auth), e.CreatedAt, e.UpdatedAt, e.CompletedAt, e.DeletedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns the envelope with the given primary id or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Envelope, error) {
	query := `SELECT ` + envelopeColumns + ` FROM envelopes WHERE id = $1`
	return scanEnvelope(r.db.QueryRowContext(ctx, query, id))
}

// GetBySecondaryID returns the envelope with the given secondary id or common.ErrorNotFound.
func (r *PostgresRepository) GetBySecondaryID(ctx context.Context, secondaryID string) (*models.Envelope, error) {
	query := `SELECT ` + envelopeColumns + ` FROM envelopes WHERE secondary_id = $1`
	return scanEnvelope(r.db.QueryRowContext(ctx, query, secondaryID))
}

// GetForUpdate is GetByID with a row lock held until the transaction ends.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Envelope, error) {
	query := `SELECT ` + envelopeColumns + ` FROM envelopes WHERE id = $1 FOR UPDATE`
	return scanEnvelope(r.db.QueryRowContext(ctx, query, id))
}

// Update rewrites the mutable columns of e. Exactly one row must match.
func (r *PostgresRepository) Update(ctx context.Context, e *models.Envelope) error {
	auth, err := models.MarshalAuthOptions(e.AuthOptions)
	if err != nil {
		return fmt.Errorf("encode auth options: %w", err)
	}
	query := `
		UPDATE envelopes SET
			title = $2,
			external_id = $3,
			visibility = $4,
			status = $5,
			folder_id = $6,
			auth_options = $7,
			updated_at = $8,
			completed_at = $9,
			deleted_at = $10
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		e.ID, e.Title, e.ExternalID, e.Visibility, e.Status, e.FolderID, string(auth), e.UpdatedAt, e.CompletedAt, e.DeletedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// UpsertMeta inserts or replaces the document meta of an envelope.
func (r *PostgresRepository) UpsertMeta(ctx context.Context, m *models.DocumentMeta) error {
	query := `
		INSERT INTO document_meta (envelope_id, subject, message, timezone, date_format, signing_order,
			redirect_url, language, typed_signature_enabled, upload_signature_enabled, draw_signature_enabled,
			distribution_method, allow_dictate_next_signer)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (envelope_id)
		DO UPDATE SET
			subject = EXCLUDED.subject,
			message = EXCLUDED.message,
			timezone = EXCLUDED.timezone,
			date_format = EXCLUDED.date_format,
			signing_order = EXCLUDED.signing_order,
			redirect_url = EXCLUDED.redirect_url,
			language = EXCLUDED.language,
			typed_signature_enabled = EXCLUDED.typed_signature_enabled,
			upload_signature_enabled = EXCLUDED.upload_signature_enabled,
			draw_signature_enabled = EXCLUDED.draw_signature_enabled,
			distribution_method = EXCLUDED.distribution_method,
			allow_dictate_next_signer = EXCLUDED.allow_dictate_next_signer
	`
	if _, err := r.db.ExecContext(ctx, query,
		m.EnvelopeID, m.Subject, m.Message, m.Timezone, m.DateFormat, m.SigningOrder,
		m.RedirectURL, m.Language, m.TypedSignatureEnabled, m.UploadSignatureEnabled, m.DrawSignatureEnabled,
		m.DistributionMethod, m.AllowDictateNextSigner); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetMeta returns the document meta of an envelope or common.ErrorNotFound.
func (r *PostgresRepository) GetMeta(ctx context.Context, envelopeID string) (*models.DocumentMeta, error) {
	query := `
		SELECT envelope_id, subject, message, timezone, date_format, signing_order, redirect_url, language,
			typed_signature_enabled, upload_signature_enabled, draw_signature_enabled,
			distribution_method, allow_dictate_next_signer
		FROM document_meta
		WHERE envelope_id = $1
	`
	m := &models.DocumentMeta{}
	if err := r.db.QueryRowContext(ctx, query, envelopeID).Scan(
		&m.EnvelopeID, &m.Subject, &m.Message, &m.Timezone, &m.DateFormat, &m.SigningOrder, &m.RedirectURL, &m.Language,
		&m.TypedSignatureEnabled, &m.UploadSignatureEnabled, &m.DrawSignatureEnabled,
		&m.DistributionMethod, &m.AllowDictateNextSigner,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

// CreateAttachment inserts an attachment row.
func (r *PostgresRepository) CreateAttachment(ctx context.Context, a *models.Attachment) error {
	query := `
		INSERT INTO attachments (id, envelope_id, label, url, type)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, a.ID, a.EnvelopeID, a.Label, a.URL, a.Type); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListAttachments returns the attachments of an envelope.
func (r *PostgresRepository) ListAttachments(ctx context.Context, envelopeID string) ([]*models.Attachment, error) {
	query := `SELECT id, envelope_id, label, url, type FROM attachments WHERE envelope_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, envelopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to select attachments: %w", err)
	}
	defer rows.Close()

	var result []*models.Attachment
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.EnvelopeID, &a.Label, &a.URL, &a.Type); err != nil {
			return nil, err
		}
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
