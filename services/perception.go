package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/techagentng/civicpulse/models"
	"google.golang.org/api/option"
	"google.golang.org/api/vision/v1"
)

// Perception turns image bytes into detected features.
type Perception interface {
	Analyze(ctx context.Context, image []byte) (*models.PerceptionResult, error)
}

const (
	maxStoredLabels    = 5
	defaultConfidence  = 0.5
	fallbackConfidence = 0.3
)

// FallbackPerception is used when the perception collaborator fails or times out.
func FallbackPerception() *models.PerceptionResult {
	category := models.CategoryOther
	priority := models.PriorityMedium
	return &models.PerceptionResult{
		Category:   &category,
		Priority:   &priority,
		Confidence: fallbackConfidence,
		Labels:     []string{},
	}
}

// VisionPerception calls Google Cloud Vision for labels, objects and text.
type VisionPerception struct {
	svc *vision.Service
}

func NewVisionPerception(ctx context.Context, apiKey string) (*VisionPerception, error) {
	svc, err := vision.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("error creating vision client: %v", err)
	}
	return &VisionPerception{svc: svc}, nil
}

func (p *VisionPerception) Analyze(ctx context.Context, image []byte) (*models.PerceptionResult, error) {
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image: &vision.Image{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []*vision.Feature{
				{Type: "LABEL_DETECTION", MaxResults: 10},
				{Type: "OBJECT_LOCALIZATION", MaxResults: 10},
				{Type: "TEXT_DETECTION"},
			},
		}},
	}
	resp, err := p.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("vision annotate: %v", err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("vision annotate: empty response")
	}
	return normalizeVisionResponse(resp.Responses[0])
}

// normalizeVisionResponse flattens one annotate response into a PerceptionResult.
func normalizeVisionResponse(r *vision.AnnotateImageResponse) (*models.PerceptionResult, error) {
	if r.Error != nil {
		return nil, fmt.Errorf("vision annotate: %s", r.Error.Message)
	}

	labels := make([]string, 0, len(r.LabelAnnotations))
	for _, label := range r.LabelAnnotations {
		labels = append(labels, strings.ToLower(label.Description))
	}
	objects := make([]string, 0, len(r.LocalizedObjectAnnotations))
	for _, obj := range r.LocalizedObjectAnnotations {
		objects = append(objects, strings.ToLower(obj.Name))
	}
	var text string
	if len(r.TextAnnotations) > 0 {
		text = r.TextAnnotations[0].Description
	}

	confidence := defaultConfidence
	if len(r.LabelAnnotations) > 0 {
		confidence = r.LabelAnnotations[0].Score
	}

	features := append(append(append([]string{}, labels...), objects...), FeaturesFromText(text)...)
	top := labels
	if len(top) > maxStoredLabels {
		top = top[:maxStoredLabels]
	}
	return &models.PerceptionResult{
		Confidence: confidence,
		Labels:     top,
		Features:   features,
	}, nil
}

// StaticPerception answers every request with the same features. It stands in
// for the vision service when no API key is configured.
type StaticPerception struct {
	Result models.PerceptionResult
}

func NewStaticPerception() *StaticPerception {
	return &StaticPerception{Result: models.PerceptionResult{
		Confidence: 0.75,
		Labels:     []string{"road", "damage", "asphalt"},
		Features:   []string{"road", "damage", "asphalt"},
	}}
}

func (p *StaticPerception) Analyze(ctx context.Context, image []byte) (*models.PerceptionResult, error) {
	r := p.Result
	r.Labels = append([]string{}, p.Result.Labels...)
	r.Features = append([]string{}, p.Result.Features...)
	return &r, nil
}

// resolveClassification decides the category and priority of a report.
// Values the collaborator decided itself are kept, missing ones come from the
// keyword classifier, and the category overrides always apply last.
func resolveClassification(result *models.PerceptionResult) (models.Category, models.Priority) {
	tokens := normalizeFeatures(result.Features)
	category := classifyCategory(tokens)
	if result.Category != nil && result.Category.IsValid() {
		category = *result.Category
	}
	priority := severity(tokens)
	if result.Priority != nil && result.Priority.IsValid() {
		priority = *result.Priority
	}
	return category, ApplyPriorityOverrides(category, priority)
}
