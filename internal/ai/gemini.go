package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"moneybook/internal/category"
	"moneybook/internal/core"
)

// GeminiExtractor implements Extractor using Google Gemini.
type GeminiExtractor struct {
	apiKey    string
	modelName string
	registry  *category.Registry
}

// NewGeminiExtractor creates a Gemini-backed extractor.
func NewGeminiExtractor(apiKey string, registry *category.Registry) *GeminiExtractor {
	return &GeminiExtractor{
		apiKey:    apiKey,
		modelName: "gemini-2.5-flash-lite",
		registry:  registry,
	}
}

// IsAvailable checks whether the extractor is configured.
func (e *GeminiExtractor) IsAvailable() bool {
	return e.apiKey != ""
}

// ExtractReceipt asks the model for the transaction fields on a receipt image.
func (e *GeminiExtractor) ExtractReceipt(ctx context.Context, image []byte, mimeType string) (ReceiptFields, error) {
	var fields ReceiptFields
	raw, err := e.generate(ctx, e.receiptPrompt(), image, mimeType)
	if err != nil {
		return fields, err
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ReceiptFields{}, fmt.Errorf("parse receipt response: %w", err)
	}
	if fields.Amount <= 0 {
		return ReceiptFields{}, fmt.Errorf("extraction produced no usable amount")
	}
	return fields, nil
}

// ExtractVoice asks the model for the transaction fields in a voice note.
func (e *GeminiExtractor) ExtractVoice(ctx context.Context, audio []byte, mimeType string) (VoiceFields, error) {
	var fields VoiceFields
	raw, err := e.generate(ctx, e.voicePrompt(), audio, mimeType)
	if err != nil {
		return fields, err
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return VoiceFields{}, fmt.Errorf("parse voice response: %w", err)
	}
	if fields.Amount <= 0 {
		return VoiceFields{}, fmt.Errorf("extraction produced no usable amount")
	}
	return fields, nil
}

func (e *GeminiExtractor) generate(ctx context.Context, prompt string, blob []byte, mimeType string) ([]byte, error) {
	if !e.IsAvailable() {
		return nil, fmt.Errorf("gemini extractor is not configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(e.apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(e.modelName)
	model.SetTemperature(0.2)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx,
		genai.Text(prompt),
		genai.Blob{MIMEType: mimeType, Data: blob},
	)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	return []byte(CleanJSONResponse(text)), nil
}

func (e *GeminiExtractor) receiptPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are reading a purchase receipt. Extract the transaction fields and ")
	sb.WriteString("respond with a single JSON object:\n")
	sb.WriteString(`{"date": "YYYY-MM-DD", "amount": <integer, whole currency units>, "description": "<merchant or purchase summary>", "category": "<one category name from the list>"}` + "\n\n")
	sb.WriteString("Available expense categories:\n")
	for _, id := range e.registry.IDs(core.Expense) {
		sb.WriteString("- " + e.registry.NameOrID(id) + "\n")
	}
	sb.WriteString("\nReturn only the JSON object, no extra text.")
	return sb.String()
}

func (e *GeminiExtractor) voicePrompt() string {
	var sb strings.Builder
	sb.WriteString("You are transcribing a spoken bookkeeping note. Extract the transaction ")
	sb.WriteString("fields and respond with a single JSON object:\n")
	sb.WriteString(`{"date": "YYYY-MM-DD", "amount": <integer>, "type": "INCOME" | "EXPENSE" | "TRANSFER", "category": "<category name>", "description": "<summary>", "location": "<place if mentioned, else empty>"}` + "\n\n")
	sb.WriteString("Category names by type:\n")
	for _, kind := range []core.TransactionType{core.Income, core.Expense, core.Transfer} {
		for _, id := range e.registry.IDs(kind) {
			sb.WriteString(fmt.Sprintf("- %s (%s)\n", e.registry.NameOrID(id), kind))
		}
	}
	sb.WriteString("\nReturn only the JSON object, no extra text.")
	return sb.String()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from gemini")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			return string(text), nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}

// CleanJSONResponse strips markdown code fences the model sometimes wraps
// around its JSON output.
func CleanJSONResponse(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
