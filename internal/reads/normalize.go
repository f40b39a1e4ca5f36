package reads

import (
	"fmt"
	"strings"

	"github.com/forescene/forescene/internal/domain"
	"github.com/forescene/forescene/internal/pinning"
)

// maxTitleLen caps display titles derived from content.
const maxTitleLen = 100

// normalize reshapes a raw record plus its resolved content into the
// display-ready form. resolved is nil when content resolution failed or was
// skipped; the record then degrades to the text kind with a generated title.
func normalize(rec domain.Record, resolved *pinning.Resolved) domain.NormalizedRecord {
	out := domain.NormalizedRecord{Record: rec}
	out.MediaKind = mediaKind(rec, resolved)
	out.Title = displayTitle(rec.ID, resolved)
	out.Summary = displaySummary(resolved)
	out.MediaURL = mediaURL(rec, resolved)
	return out
}

// mediaKind infers the display media kind. Explicit metadata wins; a record
// with unresolvable content is treated as text regardless of its on-chain
// format.
func mediaKind(rec domain.Record, resolved *pinning.Resolved) domain.MediaKind {
	if resolved == nil {
		return domain.MediaText
	}
	if meta := resolved.Meta; meta != nil {
		if meta.Media != nil {
			if k, ok := parseKind(meta.Media.Kind); ok {
				return k
			}
		}
		if k, ok := parseKind(meta.Kind); ok {
			return k
		}
	}
	return domain.KindForFormat(rec.Format)
}

func parseKind(s string) (domain.MediaKind, bool) {
	switch domain.MediaKind(strings.ToLower(strings.TrimSpace(s))) {
	case domain.MediaVideo:
		return domain.MediaVideo, true
	case domain.MediaImage:
		return domain.MediaImage, true
	case domain.MediaText:
		return domain.MediaText, true
	}
	return "", false
}

// displayTitle resolves the title priority chain: explicit metadata title,
// first line of text content, metadata title/name/content, then the
// generated fallback.
func displayTitle(id uint64, resolved *pinning.Resolved) string {
	if resolved != nil {
		if meta := resolved.Meta; meta != nil {
			if meta.Title != "" {
				return truncateTitle(meta.Title)
			}
			if line := firstLine(meta.Text); line != "" {
				return truncateTitle(line)
			}
			if meta.Name != "" {
				return truncateTitle(meta.Name)
			}
			if line := firstLine(meta.Content); line != "" {
				return truncateTitle(line)
			}
		} else if isTextBody(resolved.ContentType) {
			if line := firstLine(string(resolved.Body)); line != "" {
				return truncateTitle(line)
			}
		}
	}
	return fmt.Sprintf("Prediction #%d", id)
}

func displaySummary(resolved *pinning.Resolved) string {
	if resolved == nil || resolved.Meta == nil {
		return ""
	}
	if resolved.Meta.Summary != "" {
		return resolved.Meta.Summary
	}
	return ""
}

// mediaURL points at the raw media for video/image records. A metadata
// document's embedded media CID resolves through the same gateway that
// answered for the metadata.
func mediaURL(rec domain.Record, resolved *pinning.Resolved) string {
	if resolved == nil {
		return ""
	}
	if meta := resolved.Meta; meta != nil && meta.Media != nil && meta.Media.CID != "" {
		base := strings.TrimSuffix(resolved.URL, "/ipfs/"+rec.ContentRef)
		return base + "/ipfs/" + meta.Media.CID
	}
	if resolved.Meta == nil && !isTextBody(resolved.ContentType) {
		// Opaque non-text body: the content reference itself is the media.
		return resolved.URL
	}
	return ""
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func truncateTitle(s string) string {
	runes := []rune(s)
	if len(runes) <= maxTitleLen {
		return s
	}
	return string(runes[:maxTitleLen])
}

func isTextBody(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/") || ct == ""
}
