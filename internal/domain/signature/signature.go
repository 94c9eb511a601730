package signature

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// State represents the validation state of a signature.
type State string

const (
	StatePending     State = "pending"
	StateValidated   State = "validated"
	StateFraudulent  State = "fraudulent"
	StateInvalidated State = "invalidated"
)

var (
	ErrInvalidTransition = errors.New("invalid signature state transition")
	ErrNotFound          = errors.New("signature not found")
	ErrCreatorSignature  = errors.New("can't destroy the creator signature")
	ErrValidation        = errors.New("signature is invalid")
)

// Signature is one signer's support for one petition.
type Signature struct {
	ID             int64      `json:"id"`
	PetitionID     int64      `json:"petitionId"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Postcode       string     `json:"postcode"`
	LocationCode   string     `json:"locationCode"`
	ConstituencyID *string    `json:"constituencyId,omitempty"`
	IPAddress      string     `json:"ipAddress"`
	State          State      `json:"state"`
	Number         *int       `json:"number,omitempty"`
	ValidatedAt    *time.Time `json:"validatedAt,omitempty"`
	InvalidatedAt  *time.Time `json:"invalidatedAt,omitempty"`
	InvalidationID *int64     `json:"invalidationId,omitempty"`
	NotifyByEmail  bool       `json:"notifyByEmail"`
	Creator        bool       `json:"creator"`
	Sponsor        bool       `json:"sponsor"`
	AnonymizedAt   *time.Time `json:"anonymizedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// NewSignature builds a pending signature with normalised contact fields.
func NewSignature(petitionID int64, name, email, postcode, locationCode, ip string, notify bool, now time.Time) *Signature {
	return &Signature{
		PetitionID:    petitionID,
		Name:          strings.TrimSpace(name),
		Email:         NormalizeEmail(email),
		Postcode:      NormalizePostcode(postcode),
		LocationCode:  strings.ToUpper(strings.TrimSpace(locationCode)),
		IPAddress:     strings.TrimSpace(ip),
		State:         StatePending,
		NotifyByEmail: notify,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NormalizePostcode(postcode string) string {
	return strings.ToUpper(strings.Join(strings.Fields(postcode), ""))
}

// Domain returns the part of the email after the @.
func (s *Signature) Domain() string {
	if i := strings.LastIndexByte(s.Email, '@'); i >= 0 {
		return s.Email[i+1:]
	}
	return ""
}

// Validate validates the input fields of a new signature.
func (s *Signature) Validate() error {
	if s.PetitionID <= 0 {
		return fmt.Errorf("%w: petition is required", ErrValidation)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !strings.Contains(s.Email, "@") || strings.HasPrefix(s.Email, "@") || strings.HasSuffix(s.Email, "@") {
		return fmt.Errorf("%w: email is invalid", ErrValidation)
	}
	if s.LocationCode == "" {
		return fmt.Errorf("%w: location is required", ErrValidation)
	}
	if s.IPAddress != "" && net.ParseIP(s.IPAddress) == nil {
		return fmt.Errorf("%w: ip address is invalid", ErrValidation)
	}
	return nil
}

func (s *Signature) conflict(action string) error {
	return fmt.Errorf("%w: can't %s a signature that is %s", ErrInvalidTransition, action, s.State)
}

// MarkValidated moves a pending signature to validated with its advisory ordinal.
func (s *Signature) MarkValidated(number int, now time.Time) error {
	if s.State != StatePending {
		return s.conflict("validate")
	}
	s.State = StateValidated
	s.Number = &number
	s.ValidatedAt = &now
	s.UpdatedAt = now
	return nil
}

// MarkFraudulent moves a pending signature to fraudulent.
func (s *Signature) MarkFraudulent(now time.Time) error {
	if s.State != StatePending {
		return s.conflict("mark as fraudulent")
	}
	s.State = StateFraudulent
	s.UpdatedAt = now
	return nil
}

// MarkInvalidated invalidates the signature from any state and reports whether it was
// counted before, i.e. whether aggregates need decrementing.
func (s *Signature) MarkInvalidated(now time.Time, invalidationID *int64) bool {
	wasCounted := s.State == StateValidated
	s.State = StateInvalidated
	s.NotifyByEmail = false
	s.InvalidatedAt = &now
	s.InvalidationID = invalidationID
	s.UpdatedAt = now
	return wasCounted
}

// CanDestroy reports whether the row may be deleted.
func (s *Signature) CanDestroy() error {
	if s.Creator {
		return ErrCreatorSignature
	}
	return nil
}

// Anonymize replaces personal data with keyed digests so duplicate analysis still works
// on archived petitions without retaining the originals.
func (s *Signature) Anonymize(secret []byte, now time.Time) error {
	if s.AnonymizedAt != nil {
		return nil
	}
	digest := func(v string) (string, error) {
		h, err := blake2b.New256(secret)
		if err != nil {
			return "", err
		}
		_, _ = h.Write([]byte(v))
		return hex.EncodeToString(h.Sum(nil)), nil
	}
	email, err := digest(s.Email)
	if err != nil {
		return fmt.Errorf("anonymize email: %w", err)
	}
	ip, err := digest(s.IPAddress)
	if err != nil {
		return fmt.Errorf("anonymize ip: %w", err)
	}
	s.Name = "Anonymous"
	s.Email = email + "@anonymized.invalid"
	s.IPAddress = ip[:32]
	if len(s.Postcode) > 3 {
		s.Postcode = s.Postcode[:len(s.Postcode)-3]
	}
	s.NotifyByEmail = false
	s.AnonymizedAt = &now
	s.UpdatedAt = now
	return nil
}
