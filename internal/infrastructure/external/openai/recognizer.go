package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"strings"
	"time"

	"github.com/HadassahLevi/tiktax/internal/application/port"
	"github.com/HadassahLevi/tiktax/internal/domain/entity"
	"github.com/gen2brain/go-fitz"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// maxVisionPages bounds how many PDF pages are sent to the Vision API.
const maxVisionPages = 2

// Recognizer implements port.Recognizer using the OpenAI Vision API.
// PDF references are rasterized with mupdf before extraction.
type Recognizer struct {
	client      *openai.Client
	store       port.ImageStore
	registry    *entity.CategoryRegistry
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *zap.Logger
}

// NewRecognizer creates a Vision-backed receipt recognizer. A zero
// timeout leaves deadline control to the caller's context.
func NewRecognizer(apiKey, model string, temperature float32, maxTokens int, timeout time.Duration, store port.ImageStore, registry *entity.CategoryRegistry, logger *zap.Logger) *Recognizer {
	return &Recognizer{
		client:      openai.NewClient(apiKey),
		store:       store,
		registry:    registry,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
		logger:      logger,
	}
}

// extractionPayload is the JSON shape the model is instructed to return.
type extractionPayload struct {
	Fields map[string]struct {
		Value      string `json:"value"`
		Confidence string `json:"confidence"`
	} `json:"fields"`
}

// Recognize resolves the stored image and extracts receipt fields with
// per-field confidence bands. Terminal failures are reported as
// entity.ErrRecognitionFailed or entity.ErrRecognitionTimeout.
func (r *Recognizer) Recognize(ctx context.Context, imageRef string) (*port.RecognitionResult, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	content, ext, err := r.store.Resolve(ctx, imageRef)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve image: %v", entity.ErrRecognitionFailed, err)
	}

	pages, err := r.pagesFor(content, ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrRecognitionFailed, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no readable pages in %s", entity.ErrRecognitionFailed, imageRef)
	}

	r.logger.Debug("Extracting receipt fields",
		zap.String("image_ref", imageRef),
		zap.Int("page_count", len(pages)))

	payload, err := r.extractWithVision(ctx, pages)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", entity.ErrRecognitionTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", entity.ErrRecognitionFailed, err)
	}

	return r.toResult(payload), nil
}

// pagesFor turns the stored bytes into JPEG page images. PDFs are
// rasterized page by page, raster formats pass through as one page.
func (r *Recognizer) pagesFor(content []byte, ext string) ([][]byte, error) {
	switch ext {
	case ".jpg", ".jpeg", ".png":
		return [][]byte{content}, nil
	case ".pdf":
		return r.rasterizePDF(content)
	default:
		return nil, fmt.Errorf("unsupported image format: %s", ext)
	}
}

func (r *Recognizer) rasterizePDF(content []byte) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount > maxVisionPages {
		pageCount = maxVisionPages
	}

	var pages [][]byte
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		img, err := doc.Image(pageNum)
		if err != nil {
			r.logger.Warn("Failed to rasterize PDF page",
				zap.Int("page", pageNum),
				zap.Error(err))
			continue
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			r.logger.Warn("Failed to encode PDF page",
				zap.Int("page", pageNum),
				zap.Error(err))
			continue
		}
		pages = append(pages, buf.Bytes())
	}
	return pages, nil
}

func (r *Recognizer) extractWithVision(ctx context.Context, pages [][]byte) (*extractionPayload, error) {
	contentParts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: r.buildExtractionPrompt(),
	}}
	for _, page := range pages {
		contentParts = append(contentParts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(page)),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert in reading Israeli tax receipts and invoices (חשבונית מס / קבלה). Always respond with valid JSON.",
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: contentParts,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		r.logger.Error("Vision API call failed", zap.Error(err))
		return nil, fmt.Errorf("vision API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from Vision API")
	}

	content := resp.Choices[0].Message.Content
	var payload extractionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		r.logger.Error("Failed to parse Vision API response",
			zap.Error(err),
			zap.String("content", content))
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &payload, nil
}

// toResult maps the model payload onto the recognition contract. Fields
// with empty values are omitted, unknown confidence labels rate low.
func (r *Recognizer) toResult(payload *extractionPayload) *port.RecognitionResult {
	result := &port.RecognitionResult{
		Fields: make(map[entity.FieldID]port.RecognizedField),
	}
	for name, f := range payload.Fields {
		field := entity.FieldID(name)
		if !field.IsValid() || strings.TrimSpace(f.Value) == "" {
			continue
		}
		result.Fields[field] = port.RecognizedField{
			Value: strings.TrimSpace(f.Value),
			Band:  toBand(f.Confidence),
		}
	}
	return result
}

func toBand(label string) entity.ConfidenceBand {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case string(entity.BandHigh):
		return entity.BandHigh
	case string(entity.BandMedium):
		return entity.BandMedium
	default:
		return entity.BandLow
	}
}

func (r *Recognizer) buildExtractionPrompt() string {
	var categories strings.Builder
	for _, c := range r.registry.All() {
		fmt.Fprintf(&categories, "- %s (%s / %s)\n", c.ID, c.NameHe, c.NameEn)
	}

	return fmt.Sprintf(`Carefully examine this Israeli receipt or tax invoice image and extract the fields below.

Amounts are in New Israeli Shekels. Dates on Israeli receipts are day-first (DD/MM/YYYY). The business registration number (ח.פ or עוסק מורשה) has 9 digits, sometimes printed with dashes.

Extract:
- vendor_name: the business name as printed
- business_id: the 9-digit registration number
- date: the receipt date as DD/MM/YYYY
- total_amount: the total including VAT, as a plain decimal number
- vat_amount: the VAT portion (מע"מ), as a plain decimal number
- invoice_number: the receipt or invoice number
- category: the single best matching category id from this list:
%s
Rate each field's confidence as "high" (clearly printed and unambiguous), "medium" (readable but uncertain), or "low" (guessed or barely legible). Omit fields that are not present on the receipt.

Return a JSON object with this exact structure:
{
  "fields": {
    "vendor_name": {"value": "string", "confidence": "high|medium|low"},
    "business_id": {"value": "string", "confidence": "high|medium|low"},
    "date": {"value": "DD/MM/YYYY", "confidence": "high|medium|low"},
    "total_amount": {"value": "123.45", "confidence": "high|medium|low"},
    "vat_amount": {"value": "12.34", "confidence": "high|medium|low"},
    "invoice_number": {"value": "string", "confidence": "high|medium|low"},
    "category": {"value": "category-id", "confidence": "high|medium|low"}
  }
}`, categories.String())
}
