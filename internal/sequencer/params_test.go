package sequencer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forescene/forescene/internal/domain"
)

func validParams() CreateParams {
	return CreateParams{
		Category: "sports",
		Deadline: time.Now().Add(24 * time.Hour),
		FeeBps:   100,
		Amount:   "5",
	}
}

func TestCreateParamsValidate(t *testing.T) {
	now := time.Now()

	t.Run("valid", func(t *testing.T) {
		amount, err := validParams().validate(now)
		require.NoError(t, err)
		assert.Equal(t, "5000000000000000000", amount.String())
	})

	t.Run("blank category", func(t *testing.T) {
		p := validParams()
		p.Category = "   "
		_, err := p.validate(now)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("deadline too close", func(t *testing.T) {
		p := validParams()
		p.Deadline = now.Add(30 * time.Minute)
		_, err := p.validate(now)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("deadline in the past", func(t *testing.T) {
		p := validParams()
		p.Deadline = now.Add(-time.Hour)
		_, err := p.validate(now)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("fee above cap", func(t *testing.T) {
		p := validParams()
		p.FeeBps = 10_001
		_, err := p.validate(now)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("fee at cap is allowed", func(t *testing.T) {
		p := validParams()
		p.FeeBps = 10_000
		_, err := p.validate(now)
		assert.NoError(t, err)
	})

	t.Run("zero amount", func(t *testing.T) {
		p := validParams()
		p.Amount = "0"
		_, err := p.validate(now)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("video without file or ref", func(t *testing.T) {
		p := validParams()
		p.MediaKind = domain.MediaVideo
		_, err := p.validate(now)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("video with preexisting ref", func(t *testing.T) {
		p := validParams()
		p.MediaKind = domain.MediaVideo
		p.ContentRef = "bafymedia"
		_, err := p.validate(now)
		assert.NoError(t, err)
	})
}

func TestCreateParamsKind(t *testing.T) {
	assert.Equal(t, domain.MediaVideo, CreateParams{MediaKind: domain.MediaVideo}.kind())
	assert.Equal(t, domain.MediaVideo, CreateParams{FileContentType: "video/webm"}.kind())
	assert.Equal(t, domain.MediaImage, CreateParams{FileContentType: "image/png"}.kind())
	assert.Equal(t, domain.MediaText, CreateParams{FileContentType: "application/pdf"}.kind())
	assert.Equal(t, domain.MediaText, CreateParams{}.kind())

	// Explicit kind wins over the content type.
	assert.Equal(t, domain.MediaText, CreateParams{MediaKind: domain.MediaText, FileContentType: "video/mp4"}.kind())
}

func TestCreateParamsFileName(t *testing.T) {
	assert.Equal(t, "content", CreateParams{}.fileName())
	assert.Equal(t, "clip.mp4", CreateParams{FileName: "clip.mp4"}.fileName())
}
