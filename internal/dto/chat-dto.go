package dto

// StagedAttachmentDTO - вложение, подготовленное к отправке.
type StagedAttachmentDTO struct {
	FileName string `json:"fileName" validate:"required"`
	Path     string `json:"path" validate:"required"`
}

// SendMessageDTO - отправка сообщения чата. Правило message_content
// требует хотя бы что-то одно: текст или вложение.
type SendMessageDTO struct {
	PeerID   uint64               `json:"peerId" validate:"required"`
	Body     string               `json:"body" validate:"message_content"`
	Image    *StagedAttachmentDTO `json:"image,omitempty"`
	File     *StagedAttachmentDTO `json:"file,omitempty"`
	IsUrgent bool                 `json:"isUrgent"`
}
