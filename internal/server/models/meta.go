package models

import "fmt"

type SigningOrder string

const (
	SigningOrderParallel   SigningOrder = "PARALLEL"
	SigningOrderSequential SigningOrder = "SEQUENTIAL"
)

type DistributionMethod string

const (
	DistributionEmail DistributionMethod = "EMAIL"
	DistributionNone  DistributionMethod = "NONE"
)

// DocumentMeta is the one-to-one messaging/workflow configuration of an envelope.
type DocumentMeta struct {
	EnvelopeID             string             `json:"envelopeId"`
	Subject                string             `json:"subject"`
	Message                string             `json:"message"`
	Timezone               string             `json:"timezone"`
	DateFormat             string             `json:"dateFormat"`
	SigningOrder           SigningOrder       `json:"signingOrder,omitempty"`
	RedirectURL            string             `json:"redirectUrl"`
	Language               string             `json:"language"`
	TypedSignatureEnabled  bool               `json:"typedSignatureEnabled"`
	UploadSignatureEnabled bool               `json:"uploadSignatureEnabled"`
	DrawSignatureEnabled   bool               `json:"drawSignatureEnabled"`
	DistributionMethod     DistributionMethod `json:"distributionMethod"`
	AllowDictateNextSigner bool               `json:"allowDictateNextSigner"`
}

// DefaultDocumentMeta returns the meta an envelope gets before overrides.
func DefaultDocumentMeta(envelopeID string) *DocumentMeta {
	return &DocumentMeta{
		EnvelopeID:             envelopeID,
		Timezone:               "Etc/UTC",
		DateFormat:             "yyyy-MM-dd hh:mm a",
		SigningOrder:           SigningOrderParallel,
		Language:               "en",
		TypedSignatureEnabled:  true,
		UploadSignatureEnabled: true,
		DrawSignatureEnabled:   true,
		DistributionMethod:     DistributionEmail,
	}
}

// DocumentMetaPatch carries optional overrides; nil fields keep current values.
type DocumentMetaPatch struct {
	Subject                *string             `json:"subject,omitempty"`
	Message                *string             `json:"message,omitempty"`
	Timezone               *string             `json:"timezone,omitempty"`
	DateFormat             *string             `json:"dateFormat,omitempty"`
	SigningOrder           *SigningOrder       `json:"signingOrder,omitempty"`
	RedirectURL            *string             `json:"redirectUrl,omitempty"`
	Language               *string             `json:"language,omitempty"`
	TypedSignatureEnabled  *bool               `json:"typedSignatureEnabled,omitempty"`
	UploadSignatureEnabled *bool               `json:"uploadSignatureEnabled,omitempty"`
	DrawSignatureEnabled   *bool               `json:"drawSignatureEnabled,omitempty"`
	DistributionMethod     *DistributionMethod `json:"distributionMethod,omitempty"`
	AllowDictateNextSigner *bool               `json:"allowDictateNextSigner,omitempty"`
}

// Apply merges p into m after validating it.
func (p *DocumentMetaPatch) Apply(m *DocumentMeta) error {
	if p == nil {
		return nil
	}
	if p.SigningOrder != nil && *p.SigningOrder != SigningOrderParallel && *p.SigningOrder != SigningOrderSequential {
		return fmt.Errorf("unknown signing order %q", *p.SigningOrder)
	}
	if p.DistributionMethod != nil && *p.DistributionMethod != DistributionEmail && *p.DistributionMethod != DistributionNone {
		return fmt.Errorf("unknown distribution method %q", *p.DistributionMethod)
	}
	set(&m.Subject, p.Subject)
	set(&m.Message, p.Message)
	set(&m.Timezone, p.Timezone)
	set(&m.DateFormat, p.DateFormat)
	set(&m.SigningOrder, p.SigningOrder)
	set(&m.RedirectURL, p.RedirectURL)
	set(&m.Language, p.Language)
	set(&m.TypedSignatureEnabled, p.TypedSignatureEnabled)
	set(&m.UploadSignatureEnabled, p.UploadSignatureEnabled)
	set(&m.DrawSignatureEnabled, p.DrawSignatureEnabled)
	set(&m.DistributionMethod, p.DistributionMethod)
	set(&m.AllowDictateNextSigner, p.AllowDictateNextSigner)
	if !m.TypedSignatureEnabled && !m.UploadSignatureEnabled && !m.DrawSignatureEnabled {
		return fmt.Errorf("at least one signature type must be enabled")
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
