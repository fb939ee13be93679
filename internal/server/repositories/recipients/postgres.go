package recipients

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

// EmailConstraint keeps emails unique per envelope. It is deferred, so a
// violation may only surface when the transaction commits.
const EmailConstraint = "recipients_envelope_email_key"

// PostgresRepository implements recipient storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func wrap(err error, email string) error {
	if dbx.IsUniqueViolation(err, EmailConstraint) {
		return fmt.Errorf("%w: %s", common.ErrDuplicateEmail, email)
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *PostgresRepository) Create(ctx context.Context, rc *models.Recipient) error {
	auth, err := models.MarshalAuthOptions(rc.AuthOptions)
	if err != nil {
		return fmt.Errorf("encode auth options: %w", err)
	}
	query := `
		INSERT INTO recipients (id, envelope_id, email, name, role, signing_order, auth_options,
			send_status, signing_status, read_status, signed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := r.db.ExecContext(ctx, query,
		rc.ID, rc.EnvelopeID, rc.Email, rc.Name, rc.Role, rc.SigningOrder, string(auth),
		rc.SendStatus, rc.SigningStatus, rc.ReadStatus, rc.SignedAt); err != nil {
		return wrap(err, rc.Email)
	}
	return nil
}

func (r *PostgresRepository) ListByEnvelope(ctx context.Context, envelopeID string) ([]*models.Recipient, error) {
	query := `
		SELECT id, envelope_id, email, name, role, signing_order, auth_options,
			send_status, signing_status, read_status, signed_at
		FROM recipients
		WHERE envelope_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, envelopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to select recipients: %w", err)
	}
	defer rows.Close()

	var result []*models.Recipient
	for rows.Next() {
		var rc models.Recipient
		var auth []byte
		if err := rows.Scan(&rc.ID, &rc.EnvelopeID, &rc.Email, &rc.Name, &rc.Role, &rc.SigningOrder, &auth,
			&rc.SendStatus, &rc.SigningStatus, &rc.ReadStatus, &rc.SignedAt); err != nil {
			return nil, err
		}
		if rc.AuthOptions, err = models.UnmarshalAuthOptions(auth); err != nil {
			return nil, fmt.Errorf("decode auth options: %w", err)
		}
		result = append(result, &rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Update(ctx context.Context, rc *models.Recipient) error {
	auth, err := models.MarshalAuthOptions(rc.AuthOptions)
	if err != nil {
		return fmt.Errorf("encode auth options: %w", err)
	}
	query := `
		UPDATE recipients SET
			email = $3,
			name = $4,
			role = $5,
			signing_order = $6,
			auth_options = $7,
			send_status = $8,
			signing_status = $9,
			read_status = $10,
			signed_at = $11
		WHERE envelope_id = $1 AND id = $2
	`
	res, err := r.db.ExecContext(ctx, query,
		rc.EnvelopeID, rc.ID, rc.Email, rc.Name, rc.Role, rc.SigningOrder, string(auth),
		rc.SendStatus, rc.SigningStatus, rc.ReadStatus, rc.SignedAt)
	if err != nil {
		return wrap(err, rc.Email)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrRecipientNotFound
	}
	return nil
}

// Delete removes a recipient. Its fields go with it through ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, envelopeID, id string) error {
	query := `DELETE FROM recipients WHERE envelope_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, envelopeID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrRecipientNotFound
	}
	return nil
}
