package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/petition-hub/petition-hub/internal/domain/signature"
)

const signatureColumns = `id, petition_id, email, name, postcode, location_code, constituency_id, ip_address,
	state, number, validated_at, invalidated_at, invalidation_id, notify_by_email, creator, sponsor,
	anonymized_at, created_at, updated_at`

// SignatureRepository implements signature.Repository.
type SignatureRepository struct {
	db DB
}

func NewSignatureRepository(db DB) *SignatureRepository {
	return &SignatureRepository{db: db}
}

func (r *SignatureRepository) Create(ctx context.Context, s *signature.Signature) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO signatures
		(petition_id, email, name, postcode, location_code, constituency_id, ip_address, state, notify_by_email, creator, sponsor, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id
	`, s.PetitionID, s.Email, s.Name, s.Postcode, s.LocationCode, s.ConstituencyID, s.IPAddress, s.State,
		s.NotifyByEmail, s.Creator, s.Sponsor, s.CreatedAt, s.UpdatedAt)
	return translate(row.Scan(&s.ID))
}

func (r *SignatureRepository) GetByID(ctx context.Context, id int64) (*signature.Signature, error) {
	row := r.db.QueryRow(ctx, `SELECT `+signatureColumns+` FROM signatures WHERE id=$1`, id)
	return scanSignature(row)
}

// Lock reads the signature under a row lock held until the transaction ends.
func (r *SignatureRepository) Lock(ctx context.Context, id int64) (*signature.Signature, error) {
	row := r.db.QueryRow(ctx, `SELECT `+signatureColumns+` FROM signatures WHERE id=$1 FOR UPDATE`, id)
	return scanSignature(row)
}

func (r *SignatureRepository) LockCreator(ctx context.Context, petitionID int64) (*signature.Signature, error) {
	row := r.db.QueryRow(ctx, `SELECT `+signatureColumns+` FROM signatures WHERE petition_id=$1 AND creator FOR UPDATE`, petitionID)
	return scanSignature(row)
}

func (r *SignatureRepository) UpdateState(ctx context.Context, s *signature.Signature) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE signatures
		SET state=$1, number=$2, validated_at=$3, invalidated_at=$4, invalidation_id=$5, notify_by_email=$6, updated_at=$7
		WHERE id=$8
	`, s.State, s.Number, s.ValidatedAt, s.InvalidatedAt, s.InvalidationID, s.NotifyByEmail, s.UpdatedAt, s.ID)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return signature.ErrNotFound
	}
	return nil
}

func (r *SignatureRepository) UpdateConstituency(ctx context.Context, id int64, constituencyID string) error {
	_, err := r.db.Exec(ctx, `UPDATE signatures SET constituency_id=$2 WHERE id=$1`, id, constituencyID)
	return translate(err)
}

func (r *SignatureRepository) UpdatePersonalData(ctx context.Context, s *signature.Signature) error {
	_, err := r.db.Exec(ctx, `
		UPDATE signatures
		SET name=$1, email=$2, postcode=$3, ip_address=$4, notify_by_email=$5, anonymized_at=$6, updated_at=$7
		WHERE id=$8
	`, s.Name, s.Email, s.Postcode, s.IPAddress, s.NotifyByEmail, s.AnonymizedAt, s.UpdatedAt, s.ID)
	return translate(err)
}

func (r *SignatureRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM signatures WHERE id=$1`, id)
	return translate(err)
}

func (r *SignatureRepository) ListForAnonymizing(ctx context.Context, petitionID, afterID int64, limit int) ([]*signature.Signature, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+signatureColumns+` FROM signatures
		WHERE petition_id=$1 AND id > $2 AND anonymized_at IS NULL
		ORDER BY id LIMIT $3
	`, petitionID, afterID, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var out []*signature.Signature
	for rows.Next() {
		s, err := scanSignature(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSignature(row pgx.Row) (*signature.Signature, error) {
	var s signature.Signature
	if err := row.Scan(&s.ID, &s.PetitionID, &s.Email, &s.Name, &s.Postcode, &s.LocationCode, &s.ConstituencyID,
		&s.IPAddress, &s.State, &s.Number, &s.ValidatedAt, &s.InvalidatedAt, &s.InvalidationID, &s.NotifyByEmail,
		&s.Creator, &s.Sponsor, &s.AnonymizedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, translate(err)
	}
	return &s, nil
}
