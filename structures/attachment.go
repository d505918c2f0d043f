package structures

import "time"

// Attachment structure is a MongoDB object in the object `ChatMessage` in the schema "chat_messages"
//
// Only metadata is stored here. Bytes are uploaded by a separate pipeline, so an
// attachment may be saved with an empty URL and IsProcessing set until that
// pipeline reports back.
type Attachment struct {
	ID           string         `bson:"id" json:"id"`
	Type         AttachmentType `bson:"type" json:"type"`
	Name         string         `bson:"name" json:"name"`
	URL          string         `bson:"url" json:"url"`
	Size         int64          `bson:"size" json:"size"`
	MimeType     string         `bson:"mime_type" json:"mime_type"`
	UploadedBy   string         `bson:"uploaded_by" json:"uploaded_by"`
	UploadedAt   time.Time      `bson:"uploaded_at" json:"uploaded_at"`
	IsProcessing bool           `bson:"is_processing" json:"is_processing"`
	IsScanned    bool           `bson:"is_scanned" json:"is_scanned"`
}

type AttachmentType string

const (
	AttachmentTypeImage AttachmentType = "image"
	AttachmentTypeVideo AttachmentType = "video"
	AttachmentTypeAudio AttachmentType = "audio"
	AttachmentTypeFile  AttachmentType = "file"
)
