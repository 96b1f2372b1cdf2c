package chat

// OriginInfo describes the file as it existed on the user's machine.
type OriginInfo struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

// Attachment is the upload result the file service returns and the shape
// persisted on a message. Only successfully uploaded attachments ever reach
// an outbound payload.
type Attachment struct {
	OpaiFileID string     `json:"opaiFileId"`
	OriginInfo OriginInfo `json:"originInfo"`
	LocalPath  string     `json:"localPath,omitempty"`
}
