package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techagentng/civicpulse/models"
	"google.golang.org/api/vision/v1"
)

func TestNormalizeVisionResponse(t *testing.T) {
	resp := &vision.AnnotateImageResponse{
		LabelAnnotations: []*vision.EntityAnnotation{
			{Description: "Asphalt", Score: 0.91},
			{Description: "Road surface", Score: 0.88},
			{Description: "Pothole", Score: 0.8},
			{Description: "Tar", Score: 0.7},
			{Description: "Street", Score: 0.6},
			{Description: "Lane", Score: 0.5},
		},
		LocalizedObjectAnnotations: []*vision.LocalizedObjectAnnotation{
			{Name: "Car"},
		},
		TextAnnotations: []*vision.EntityAnnotation{
			{Description: "DANGEROUS Crossing"},
		},
	}

	result, err := normalizeVisionResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, 0.91, result.Confidence)
	assert.Equal(t, []string{"asphalt", "road surface", "pothole", "tar", "street"}, result.Labels)
	assert.Contains(t, result.Features, "car")
	assert.Contains(t, result.Features, "dangerous")
	assert.Nil(t, result.Category)

	category, priority := resolveClassification(result)
	assert.Equal(t, models.CategoryPothole, category)
	assert.Equal(t, models.PriorityHigh, priority)
}

func TestNormalizeVisionResponse_Empty(t *testing.T) {
	result, err := normalizeVisionResponse(&vision.AnnotateImageResponse{})
	require.NoError(t, err)
	assert.Equal(t, defaultConfidence, result.Confidence)
	assert.Empty(t, result.Labels)

	_, err = normalizeVisionResponse(&vision.AnnotateImageResponse{Error: &vision.Status{Message: "bad image"}})
	assert.Error(t, err)
}

func TestStaticPerception(t *testing.T) {
	p := NewStaticPerception()
	result, err := p.Analyze(context.Background(), nil)
	require.NoError(t, err)

	result.Labels[0] = "mutated"
	again, err := p.Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "road", again.Labels[0])

	category, priority := resolveClassification(again)
	assert.Equal(t, models.CategoryPothole, category)
	assert.Equal(t, models.PriorityHigh, priority)
}

func TestResolveClassification_Overrides(t *testing.T) {
	leak := models.CategoryWaterLeak
	low := models.PriorityLow
	category, priority := resolveClassification(&models.PerceptionResult{Category: &leak, Priority: &low})
	assert.Equal(t, models.CategoryWaterLeak, category)
	assert.Equal(t, models.PriorityHigh, priority)

	category, priority = resolveClassification(FallbackPerception())
	assert.Equal(t, models.CategoryOther, category)
	assert.Equal(t, models.PriorityMedium, priority)
}
