package mask

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segstudio/maskengine/internal/geometry"
)

// ObjectMetadata is the descriptive text attached to a segmented object.
type ObjectMetadata struct {
	Description       string `json:"description"`
	Location          string `json:"location"`
	Relationship      string `json:"relationship"`
	RelativeSize      string `json:"relative_size"`
	ShapeAndColor     string `json:"shape_and_color"`
	Texture           string `json:"texture"`
	AppearanceDetails string `json:"appearance_details"`
	Orientation       string `json:"orientation"`
}

// MaskMetadata describes one mask as reported by the segmentation run.
type MaskMetadata struct {
	MaskID         string               `json:"mask_id"`
	ObjectID       string               `json:"object_id,omitempty"`
	Label          string               `json:"label"`
	Confidence     float64              `json:"confidence"`
	BoundingBox    geometry.BoundingBox `json:"bounding_box"`
	AreaPixels     int                  `json:"area_pixels"`
	AreaPercentage float64              `json:"area_percentage"`
	Centroid       [2]int               `json:"centroid"`
	MaskURL        string               `json:"mask_url"`
	ObjectMetadata *ObjectMetadata      `json:"object_metadata,omitempty"`
}

// Result is the payload of one segmentation run.
type Result struct {
	ResultID         string         `json:"result_id"`
	OriginalImageURL string         `json:"original_image_url"`
	ImageWidth       float64        `json:"image_width"`
	ImageHeight      float64        `json:"image_height"`
	Masks            []MaskMetadata `json:"masks"`
}

// ResultSet is the current set of masks. It is replaced wholesale when a new
// segmentation run arrives and is safe for concurrent use.
type ResultSet struct {
	mu       sync.RWMutex
	resultID string
	imageURL string
	size     geometry.ImageSize
	order    []string
	masks    map[string]*MaskMetadata
}

// NewResultSet creates an empty result set.
func NewResultSet() *ResultSet {
	return &ResultSet{masks: make(map[string]*MaskMetadata)}
}

// ParseResult decodes a segmentation result from JSON.
func ParseResult(data []byte) (*Result, error) {
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if res.ImageWidth <= 0 || res.ImageHeight <= 0 {
		return nil, fmt.Errorf("result %q: image size %vx%v is not positive", res.ResultID, res.ImageWidth, res.ImageHeight)
	}
	return &res, nil
}

// Load replaces the current contents with res.
func (rs *ResultSet) Load(res *Result) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.resultID = res.ResultID
	rs.imageURL = res.OriginalImageURL
	rs.size = geometry.ImageSize{Width: res.ImageWidth, Height: res.ImageHeight}
	rs.order = make([]string, 0, len(res.Masks))
	rs.masks = make(map[string]*MaskMetadata, len(res.Masks))
	for i := range res.Masks {
		m := res.Masks[i]
		if m.ObjectMetadata != nil {
			meta := *m.ObjectMetadata
			m.ObjectMetadata = &meta
		}
		if _, dup := rs.masks[m.MaskID]; !dup {
			rs.order = append(rs.order, m.MaskID)
		}
		rs.masks[m.MaskID] = &m
	}
}

// Clear drops every mask.
func (rs *ResultSet) Clear() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.resultID = ""
	rs.imageURL = ""
	rs.size = geometry.ImageSize{}
	rs.order = nil
	rs.masks = make(map[string]*MaskMetadata)
}

// Remove drops one mask. It reports whether the mask was present.
func (rs *ResultSet) Remove(maskID string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, ok := rs.masks[maskID]; !ok {
		return false
	}
	delete(rs.masks, maskID)
	for i, id := range rs.order {
		if id == maskID {
			rs.order = append(rs.order[:i], rs.order[i+1:]...)
			break
		}
	}
	return true
}

// ResultID returns the id of the loaded run.
func (rs *ResultSet) ResultID() string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.resultID
}

// ImageURL returns the original image URL of the loaded run.
func (rs *ResultSet) ImageURL() string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.imageURL
}

// ImageSize returns the source image size.
func (rs *ResultSet) ImageSize() geometry.ImageSize {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.size
}

// Has reports whether the mask belongs to the current result set.
func (rs *ResultSet) Has(maskID string) bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	_, ok := rs.masks[maskID]
	return ok
}

// ReportedBox returns the bounding box reported by the segmentation run.
func (rs *ResultSet) ReportedBox(maskID string) (geometry.BoundingBox, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	m, ok := rs.masks[maskID]
	if !ok {
		return geometry.BoundingBox{}, false
	}
	return m.BoundingBox, true
}

// Get returns a copy of a mask's metadata.
func (rs *ResultSet) Get(maskID string) (MaskMetadata, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	m, ok := rs.masks[maskID]
	if !ok {
		return MaskMetadata{}, false
	}
	out := *m
	if m.ObjectMetadata != nil {
		meta := *m.ObjectMetadata
		out.ObjectMetadata = &meta
	}
	return out, true
}

// IDs returns mask ids in the order the run reported them.
func (rs *ResultSet) IDs() []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return append([]string(nil), rs.order...)
}

// Update applies fn to a mask under the write lock. Missing masks are skipped
// and reported as false.
func (rs *ResultSet) Update(maskID string, fn func(m *MaskMetadata)) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	m, ok := rs.masks[maskID]
	if !ok {
		return false
	}
	fn(m)
	return true
}
