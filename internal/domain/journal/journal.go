package journal

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies one of the denormalized per-dimension counters.
type Kind string

const (
	KindConstituency Kind = "constituency"
	KindCountry      Kind = "country"
	KindTrending     Kind = "trending"
)

// Kinds lists every journal kind.
var Kinds = []Kind{KindConstituency, KindCountry, KindTrending}

var ErrUnknownKind = errors.New("unknown journal kind")

const trendingLayout = "2006-01-02T15"

// ParseKind validates a journal kind name.
func ParseKind(v string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == v {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, v)
}

// Key is the natural key of a journal row: one row per (petition, dimension value).
type Key struct {
	Kind       Kind
	PetitionID int64
	Value      string
}

func ConstituencyKey(petitionID int64, constituencyID string) Key {
	return Key{Kind: KindConstituency, PetitionID: petitionID, Value: constituencyID}
}

func CountryKey(petitionID int64, locationCode string) Key {
	return Key{Kind: KindCountry, PetitionID: petitionID, Value: locationCode}
}

// TrendingKey buckets a validation time into its UTC date and hour of day.
func TrendingKey(petitionID int64, at time.Time) Key {
	return Key{Kind: KindTrending, PetitionID: petitionID, Value: at.UTC().Format(trendingLayout)}
}

// Hour returns the start of the hour bucket of a trending key.
func (k Key) Hour() (time.Time, error) {
	if k.Kind != KindTrending {
		return time.Time{}, fmt.Errorf("%s journal has no hour", k.Kind)
	}
	return time.ParseInLocation(trendingLayout, k.Value, time.UTC)
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%s", k.Kind, k.PetitionID, k.Value)
}

// Journal is one aggregate row.
type Journal struct {
	ID             int64      `json:"id"`
	Kind           Kind       `json:"kind"`
	PetitionID     int64      `json:"petitionId"`
	Value          string     `json:"value"`
	SignatureCount int        `json:"signatureCount"`
	LastSignedAt   *time.Time `json:"lastSignedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Key returns the natural key of the row.
func (j *Journal) Key() Key {
	return Key{Kind: j.Kind, PetitionID: j.PetitionID, Value: j.Value}
}
