package sequencer

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/forescene/forescene/internal/domain"
)

// minDeadlineLead is the minimum distance between validation time and a new
// record's deadline.
const minDeadlineLead = time.Hour

// maxFeeBps is the inclusive upper bound for a creator fee.
const maxFeeBps = 10_000

// CreateParams carries the user's input for a record creation run.
type CreateParams struct {
	Title    string
	Text     string
	Summary  string
	Category string
	Deadline time.Time
	FeeBps   int
	Amount   string // initial stake, decimal string

	MediaKind       domain.MediaKind
	File            []byte
	FileName        string
	FileContentType string

	// ContentRef, when set, points at already-pinned content and skips the
	// uploading stage entirely.
	ContentRef string
}

// validate applies the local pre-network rules and returns the parsed stake
// amount. All failures wrap domain.ErrValidation; no network call has been
// attempted when validate fails.
func (p CreateParams) validate(now time.Time) (*big.Int, error) {
	if p.category() == "" {
		return nil, fmt.Errorf("%w: category is required", domain.ErrValidation)
	}
	if p.Deadline.Before(now.Add(minDeadlineLead)) {
		return nil, fmt.Errorf("%w: deadline must be at least one hour in the future", domain.ErrValidation)
	}
	if p.FeeBps < 0 || p.FeeBps > maxFeeBps {
		return nil, fmt.Errorf("%w: fee must be within 0-%d basis points, got %d", domain.ErrValidation, maxFeeBps, p.FeeBps)
	}
	amount, err := domain.ParseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if p.kind() == domain.MediaVideo && p.ContentRef == "" && len(p.File) == 0 {
		return nil, fmt.Errorf("%w: video submission requires a file", domain.ErrValidation)
	}
	return amount, nil
}

func (p CreateParams) category() string {
	return strings.TrimSpace(p.Category)
}

// kind resolves the media kind of the submission: the explicit kind wins,
// then the file's content type, then text.
func (p CreateParams) kind() domain.MediaKind {
	switch p.MediaKind {
	case domain.MediaVideo, domain.MediaImage, domain.MediaText:
		return p.MediaKind
	}
	ct := strings.ToLower(p.FileContentType)
	switch {
	case strings.HasPrefix(ct, "video/"):
		return domain.MediaVideo
	case strings.HasPrefix(ct, "image/"):
		return domain.MediaImage
	default:
		return domain.MediaText
	}
}

func (p CreateParams) fileName() string {
	if p.FileName != "" {
		return p.FileName
	}
	return "content"
}
