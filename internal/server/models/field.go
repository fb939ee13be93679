package models

import (
	"encoding/json"
	"fmt"
)

// FieldType enumerates the placeable field kinds.
type FieldType string

const (
	FieldSignature FieldType = "SIGNATURE"
	FieldInitials  FieldType = "INITIALS"
	FieldName      FieldType = "NAME"
	FieldEmail     FieldType = "EMAIL"
	FieldDate      FieldType = "DATE"
	FieldText      FieldType = "TEXT"
	FieldNumber    FieldType = "NUMBER"
	FieldCheckbox  FieldType = "CHECKBOX"
	FieldRadio     FieldType = "RADIO"
	FieldDropdown  FieldType = "DROPDOWN"
)

var fieldTypes = map[FieldType]struct{}{
	FieldSignature: {}, FieldInitials: {}, FieldName: {}, FieldEmail: {}, FieldDate: {},
	FieldText: {}, FieldNumber: {}, FieldCheckbox: {}, FieldRadio: {}, FieldDropdown: {},
}

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	_, ok := fieldTypes[t]
	return ok
}

// Field is a recipient-bound marker placed on one page of one envelope item.
// Position and size are fractions of the page, each within [0,1].
type Field struct {
	ID             string          `json:"id"`
	EnvelopeID     string          `json:"envelopeId"`
	EnvelopeItemID string          `json:"envelopeItemId"`
	RecipientID    string          `json:"recipientId"`
	Type           FieldType       `json:"type"`
	Page           int             `json:"page"`
	PositionX      float64         `json:"positionX"`
	PositionY      float64         `json:"positionY"`
	Width          float64         `json:"width"`
	Height         float64         `json:"height"`
	Inserted       bool            `json:"inserted"`
	Meta           json.RawMessage `json:"meta,omitempty"`
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

// ValidatePlacement checks the page number and normalized geometry. pageCount
// is the number of pages of the target item, or 0 when unknown.
func (f *Field) ValidatePlacement(pageCount int) error {
	if f.Page < 1 {
		return fmt.Errorf("page must be >= 1, got %d", f.Page)
	}
	if pageCount > 0 && f.Page > pageCount {
		return fmt.Errorf("page %d exceeds document page count %d", f.Page, pageCount)
	}
	dims := []struct {
		name string
		v    float64
	}{
		{"positionX", f.PositionX}, {"positionY", f.PositionY}, {"width", f.Width}, {"height", f.Height},
	}
	for _, d := range dims {
		if !inUnit(d.v) {
			return fmt.Errorf("%s must be within [0,1], got %v", d.name, d.v)
		}
	}
	if f.PositionX+f.Width > 1 || f.PositionY+f.Height > 1 {
		return fmt.Errorf("field extends beyond the page")
	}
	return nil
}
