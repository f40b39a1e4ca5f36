package domain

import "time"

// RecordStatus represents the lifecycle state of an on-chain prediction
// record. Transitions are monotonic: ACTIVE -> LOCKED -> RESOLVED, or the
// terminal branch ACTIVE -> CANCELLED. No transition reverses.
type RecordStatus uint8

const (
	RecordStatusActive RecordStatus = iota
	RecordStatusLocked
	RecordStatusResolved
	RecordStatusCancelled
)

// String returns the lowercase name used in API responses and logs.
func (s RecordStatus) String() string {
	switch s {
	case RecordStatusActive:
		return "active"
	case RecordStatusLocked:
		return "locked"
	case RecordStatusResolved:
		return "resolved"
	case RecordStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ContentFormat is the on-chain format discriminator stored with a record's
// content reference. It is used as the fallback for media-kind inference when
// the referenced content cannot be resolved.
type ContentFormat uint8

const (
	FormatVideo ContentFormat = 0
	FormatText  ContentFormat = 1
	FormatImage ContentFormat = 2
)

// MediaKind classifies the resolved display media of a record.
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaImage MediaKind = "image"
	MediaText  MediaKind = "text"
)

// KindForFormat maps the on-chain format field to a display media kind.
func KindForFormat(f ContentFormat) MediaKind {
	switch f {
	case FormatVideo:
		return MediaVideo
	case FormatImage:
		return MediaImage
	default:
		return MediaText
	}
}

// FormatForKind is the inverse mapping, used when creating a record from an
// upload whose kind is known client-side.
func FormatForKind(k MediaKind) ContentFormat {
	switch k {
	case MediaVideo:
		return FormatVideo
	case MediaImage:
		return FormatImage
	default:
		return FormatText
	}
}

// Record is a prediction/market entity as read from the ledger. The
// identifier is assigned by the registry contract; deadline and creator fee
// are immutable after creation, and lock time never decreases once set.
type Record struct {
	ID         uint64
	Creator    string // hex account address
	ContentRef string // content-addressed pointer, immutable once set
	Format     ContentFormat
	Category   string
	Deadline   time.Time
	LockTime   time.Time // zero until locked; >= Deadline afterwards
	Status     RecordStatus
	IsActive   bool // togglable flag, orthogonal to Status
	FeeBps     uint16
	CopyCount  uint64
}

// NormalizedRecord is the display-ready shape produced by the aggregated read
// layer: the raw record plus resolved content and pool-derived odds.
type NormalizedRecord struct {
	Record
	Title     string
	Summary   string
	MediaKind MediaKind
	MediaURL  string
	Odds      Odds
	FetchedAt time.Time
}
