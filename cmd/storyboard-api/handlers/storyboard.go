// Package handlers provides HTTP handlers for the storyboard API.
package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/spotlight-ai/storyboard-engine/internal/cache"
	"github.com/spotlight-ai/storyboard-engine/internal/domain"
	"github.com/spotlight-ai/storyboard-engine/internal/observability"
)

// Extractor runs one document through the extraction pipeline.
type Extractor interface {
	Run(ctx context.Context, doc domain.Document) ([]domain.Spot, error)
}

// StoryboardOptions holds handler-level settings.
type StoryboardOptions struct {
	MaxUploadBytes int64
	CacheTTL       time.Duration
}

// StoryboardHandler handles storyboard extraction requests.
type StoryboardHandler struct {
	logger      *observability.Logger
	pipeline    Extractor
	resultCache cache.Client
	opts        StoryboardOptions
}

// NewStoryboardHandler creates a new storyboard handler.
func NewStoryboardHandler(logger *observability.Logger, pipeline Extractor, resultCache cache.Client, opts StoryboardOptions) *StoryboardHandler {
	return &StoryboardHandler{
		logger:      logger,
		pipeline:    pipeline,
		resultCache: resultCache,
		opts:        opts,
	}
}

// StoryboardResponseDTO represents the API response.
type StoryboardResponseDTO struct {
	Spots []SpotDTO `json:"spots"`
}

// SpotDTO represents one commercial spot.
type SpotDTO struct {
	Name  string    `json:"name"`
	Shots []ShotDTO `json:"shots"`
}

// ShotDTO represents one continuous shot.
type ShotDTO struct {
	ShotNumber  string   `json:"shotNumber"`
	Frames      []string `json:"frames"`
	Images      []string `json:"images"`
	Description string   `json:"description"`
	Dialog      string   `json:"dialog"`
	Combined    string   `json:"combined"`
}

// Extract handles POST /storyboards/extract. The document arrives either as
// a multipart "file" field or as the raw request body with its media type in
// the Content-Type header.
func (h *StoryboardHandler) Extract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	doc, err := h.readDocument(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid upload", err.Error())
		return
	}
	if !domain.SupportedMediaType(doc.MediaType) {
		h.writeError(w, http.StatusUnsupportedMediaType, "unsupported media type", doc.MediaType)
		return
	}

	key := contentHash(doc.Data)
	if cached, err := h.resultCache.Get(ctx, key); err == nil {
		h.logger.Info().Str("content_hash", key).Msg("Serving cached analysis")
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		w.Write(cached)
		return
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		h.logger.Warn().Err(err).Msg("Cache lookup failed")
	}

	h.logger.Info().
		Str("media_type", doc.MediaType).
		Int("bytes", len(doc.Data)).
		Str("content_hash", key).
		Msg("Processing storyboard extraction")

	spots, err := h.pipeline.Run(ctx, doc)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	resp := toResponseDTO(spots)
	body, err := json.Marshal(resp)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "response encoding failed", err.Error())
		return
	}

	if err := h.resultCache.Set(ctx, key, body, h.opts.CacheTTL); err != nil {
		h.logger.Warn().Err(err).Msg("Cache store failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// readDocument pulls the uploaded document out of the request.
func (h *StoryboardHandler) readDocument(r *http.Request) (domain.Document, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, h.opts.MaxUploadBytes)

	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return readMultipart(r)
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return domain.Document{}, err
	}
	if len(data) == 0 {
		return domain.Document{}, errors.New("empty request body")
	}
	return domain.Document{Data: data, MediaType: mediaType}, nil
}

func readMultipart(r *http.Request) (domain.Document, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return domain.Document{}, errors.New(`multipart upload requires a "file" field`)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.Document{}, err
	}
	if len(data) == 0 {
		return domain.Document{}, errors.New("uploaded file is empty")
	}

	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(data)
	}
	return domain.Document{Data: data, MediaType: mediaType}, nil
}

func toResponseDTO(spots []domain.Spot) StoryboardResponseDTO {
	resp := StoryboardResponseDTO{Spots: make([]SpotDTO, 0, len(spots))}
	for _, spot := range spots {
		dto := SpotDTO{Name: spot.Name, Shots: make([]ShotDTO, 0, len(spot.Shots))}
		for _, shot := range spot.Shots {
			images := make([]string, 0, len(shot.Images))
			for _, img := range shot.Images {
				if len(img) == 0 {
					continue
				}
				images = append(images, base64.StdEncoding.EncodeToString(img))
			}
			dto.Shots = append(dto.Shots, ShotDTO{
				ShotNumber:  shot.Number,
				Frames:      shot.FrameLabels,
				Images:      images,
				Description: shot.Description,
				Dialog:      shot.Dialog,
				Combined:    shot.Combined,
			})
		}
		resp.Spots = append(resp.Spots, dto)
	}
	return resp
}

// writePipelineError maps pipeline error types onto HTTP statuses.
func (h *StoryboardHandler) writePipelineError(w http.ResponseWriter, err error) {
	var perr *domain.PipelineError
	status := http.StatusInternalServerError
	message := "storyboard extraction failed"

	switch {
	case errors.Is(err, domain.ErrNoCredential):
		status = http.StatusServiceUnavailable
		message = "extraction oracle is not configured"
	case errors.As(err, &perr):
		switch perr.Type {
		case domain.ErrorTypeValidation:
			status = http.StatusBadRequest
			message = "invalid document"
		case domain.ErrorTypeRender:
			status = http.StatusUnprocessableEntity
			message = "document could not be rasterized"
		}
	}

	h.logger.Error().Err(err).Msg("Extraction failed")
	h.writeError(w, status, message, err.Error())
}

func (h *StoryboardHandler) writeError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	json.NewEncoder(w).Encode(resp)
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
