// Package ai defines the field-extraction collaborator: an opaque service
// that turns receipt images or voice notes into structured transaction field
// guesses. The rest of the system only depends on the result shape.
package ai

import "context"

// ReceiptFields is the structured guess extracted from a receipt image.
type ReceiptFields struct {
	Date        string `json:"date"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// VoiceFields is the structured guess extracted from a voice note.
type VoiceFields struct {
	Date        string `json:"date"`
	Amount      int64  `json:"amount"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`
}

// Extractor is the port the core calls. A failed extraction returns an error;
// no partial transaction is ever created from one.
type Extractor interface {
	ExtractReceipt(ctx context.Context, image []byte, mimeType string) (ReceiptFields, error)
	ExtractVoice(ctx context.Context, audio []byte, mimeType string) (VoiceFields, error)
}
