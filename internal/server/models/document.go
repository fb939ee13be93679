package models

// DocumentDataType says how DocumentData.Data should be interpreted.
type DocumentDataType string

const (
	DocumentDataS3Path  DocumentDataType = "S3_PATH"
	DocumentDataBytes64 DocumentDataType = "BYTES_64"
)

// MimeTypePDF is the only content type envelope items accept.
const MimeTypePDF = "application/pdf"

// DocumentData is the content an envelope item points at. The bytes live in
// object storage (S3_PATH) or inline as base64 (BYTES_64). It belongs to the
// user or team that registered it.
type DocumentData struct {
	ID        string           `json:"id"`
	Type      DocumentDataType `json:"type"`
	Data      string           `json:"data"`
	MimeType  string           `json:"mimeType"`
	PageCount int              `json:"pageCount"`
	UserID    string           `json:"userId"`
	TeamID    *string          `json:"teamId,omitempty"`
}

// OwnedBy applies the envelope visibility rule to content: team content
// belongs to the team, personal content to its user only.
func (d *DocumentData) OwnedBy(userID string, teamID *string) bool {
	if teamID != nil {
		return d.TeamID != nil && *d.TeamID == *teamID
	}
	return d.TeamID == nil && d.UserID != "" && d.UserID == userID
}
