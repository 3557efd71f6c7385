package manipulation

import "github.com/segstudio/maskengine/internal/geometry"

// MaskSource answers which masks exist in the current result set.
// *mask.ResultSet implements it.
type MaskSource interface {
	Has(maskID string) bool
	ReportedBox(maskID string) (geometry.BoundingBox, bool)
	ImageSize() geometry.ImageSize
}

// MetadataUpdater recomputes descriptive fields after a geometric commit.
// Implementations must not block the caller.
type MetadataUpdater interface {
	UpdateMetadata(maskID string, bbox geometry.BoundingBox, size geometry.ImageSize)
}

// EditDescriber turns an image edit into descriptive text. Fire and forget.
type EditDescriber interface {
	DescribeEdit(maskID string, patch geometry.ImageEditsPatch)
}

// CommitListener observes every commit, e.g. to relay it to other viewers.
type CommitListener interface {
	OnCommit(c Commit)
}

// CommitListenerFunc adapts a function to CommitListener.
type CommitListenerFunc func(c Commit)

func (f CommitListenerFunc) OnCommit(c Commit) { f(c) }

// CommitKind names the operation that produced a commit.
type CommitKind string

const (
	CommitDrag           CommitKind = "drag"
	CommitResize         CommitKind = "resize"
	CommitRotate         CommitKind = "rotate"
	CommitFlipHorizontal CommitKind = "flipHorizontal"
	CommitFlipVertical   CommitKind = "flipVertical"
	CommitReset          CommitKind = "reset"
	CommitEdit           CommitKind = "edit"
	CommitVisibility     CommitKind = "visibility"
)

// Commit is the canonical state of a mask right after a commit.
type Commit struct {
	MaskID      string               `json:"maskId"`
	Kind        CommitKind           `json:"kind"`
	BoundingBox geometry.BoundingBox `json:"boundingBox"`
	Transform   Transform            `json:"transform"`
	Hidden      bool                 `json:"hidden"`
	ImageSize   geometry.ImageSize   `json:"imageSize"`
	// Reconciled is false when the commit was a no-op for metadata purposes.
	Reconciled bool `json:"reconciled"`
}
