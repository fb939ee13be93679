// Package envelopeid translates between an envelope's opaque identifiers and
// the per-kind legacy numeric ids used by single-item integrations.
//
// Three identifier shapes exist:
//
//	envelope_<hex>       primary id, random, kind-agnostic
//	document_<sqid>      secondary id of a DOCUMENT envelope
//	template_<sqid>      secondary id of a TEMPLATE envelope
//
// A secondary id is a pure function of (kind, legacy id): the sqid encodes the
// pair [kind discriminant, legacy id], so no lookup table is needed to go
// either way.
package envelopeid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/sqids/sqids-go"
)

const (
	PrimaryPrefix  = "envelope_"
	documentPrefix = "document_"
	templatePrefix = "template_"

	minSqidLength = 8
)

var (
	ErrMalformedID  = errors.New("malformed envelope id")
	ErrKindMismatch = errors.New("envelope id belongs to another kind")
)

var discriminants = map[models.EnvelopeType]uint64{
	models.EnvelopeTypeDocument: 1,
	models.EnvelopeTypeTemplate: 2,
}

var prefixes = map[models.EnvelopeType]string{
	models.EnvelopeTypeDocument: documentPrefix,
	models.EnvelopeTypeTemplate: templatePrefix,
}

// Translator encodes and decodes secondary ids with a fixed alphabet.
type Translator struct {
	codec *sqids.Sqids
}

// NewTranslator builds a Translator. The alphabet must stay stable for the
// lifetime of the data, otherwise issued ids stop decoding.
func NewTranslator(alphabet string) (*Translator, error) {
	codec, err := sqids.New(sqids.Options{Alphabet: alphabet, MinLength: minSqidLength})
	if err != nil {
		return nil, fmt.Errorf("sqids init: %w", err)
	}
	return &Translator{codec: codec}, nil
}

func malformed(id string) error {
	return fmt.Errorf("%w: %w %q", common.ErrInvalidRequest, ErrMalformedID, id)
}

// ToSecondaryID derives the secondary id of the envelope of the given kind
// with the given legacy id.
func (t *Translator) ToSecondaryID(kind models.EnvelopeType, legacyID int64) (string, error) {
	disc, ok := discriminants[kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown envelope kind %q", common.ErrInvalidRequest, kind)
	}
	if legacyID < 1 {
		return "", fmt.Errorf("%w: legacy id must be positive, got %d", common.ErrInvalidRequest, legacyID)
	}
	enc, err := t.codec.Encode([]uint64{disc, uint64(legacyID)})
	if err != nil {
		return "", fmt.Errorf("sqids encode: %w", err)
	}
	return prefixes[kind] + enc, nil
}

// Decode returns the kind and legacy id embedded in a secondary id.
func (t *Translator) Decode(secondaryID string) (models.EnvelopeType, int64, error) {
	var kind models.EnvelopeType
	var body string
	for k, p := range prefixes {
		if strings.HasPrefix(secondaryID, p) {
			kind, body = k, strings.TrimPrefix(secondaryID, p)
			break
		}
	}
	if kind == "" || body == "" {
		return "", 0, malformed(secondaryID)
	}

	nums := t.codec.Decode(body)
	if len(nums) != 2 || nums[0] != discriminants[kind] || nums[1] == 0 || nums[1] > uint64(1<<63-1) {
		return "", 0, malformed(secondaryID)
	}

	// Only the canonical encoding is accepted, so every pair has exactly one id.
	canonical, err := t.codec.Encode(nums)
	if err != nil || canonical != body {
		return "", 0, malformed(secondaryID)
	}

	return kind, int64(nums[1]), nil
}

// ToLegacyID returns the legacy id embedded in secondaryID.
func (t *Translator) ToLegacyID(secondaryID string) (int64, error) {
	_, id, err := t.Decode(secondaryID)
	return id, err
}

// ToLegacyIDForKind is ToLegacyID that fails closed when the id belongs to a
// different kind than the caller expects.
func (t *Translator) ToLegacyIDForKind(secondaryID string, expected models.EnvelopeType) (int64, error) {
	kind, id, err := t.Decode(secondaryID)
	if err != nil {
		return 0, err
	}
	if kind != expected {
		return 0, fmt.Errorf("%w: %w: %s is not a %s", common.ErrorNotFound, ErrKindMismatch, secondaryID, expected)
	}
	return id, nil
}

// Reference is a caller-supplied envelope identifier after classification.
// Exactly one of PrimaryID and SecondaryID is set.
type Reference struct {
	PrimaryID   string
	SecondaryID string
}

// Resolve classifies ref, which may be a primary id, a secondary id or a bare
// legacy number. kind is required for bare numbers and, when given, must
// match the kind embedded in a secondary id.
func (t *Translator) Resolve(ref string, kind models.EnvelopeType) (Reference, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, PrimaryPrefix):
		if len(ref) == len(PrimaryPrefix) {
			return Reference{}, malformed(ref)
		}
		return Reference{PrimaryID: ref}, nil

	case strings.HasPrefix(ref, documentPrefix), strings.HasPrefix(ref, templatePrefix):
		got, _, err := t.Decode(ref)
		if err != nil {
			return Reference{}, err
		}
		if kind != "" && got != kind {
			return Reference{}, fmt.Errorf("%w: %w: %s is not a %s", common.ErrorNotFound, ErrKindMismatch, ref, kind)
		}
		return Reference{SecondaryID: ref}, nil
	}

	legacy, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return Reference{}, malformed(ref)
	}
	if kind == "" {
		return Reference{}, fmt.Errorf("%w: a legacy id needs an envelope kind", common.ErrInvalidRequest)
	}
	sec, err := t.ToSecondaryID(kind, legacy)
	if err != nil {
		return Reference{}, err
	}
	return Reference{SecondaryID: sec}, nil
}

// NewPrimaryID returns a fresh random primary envelope id.
func NewPrimaryID() string {
	return PrimaryPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
