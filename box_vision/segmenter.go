package boxvision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"net/http"
	"strings"
	"time"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/rimage"
	rdkutils "go.viam.com/rdk/utils"
)

const defaultSegmentTimeout = 30 * time.Second

// SegmentHint is the prompt for a segmentation request: a single point on the
// object or its bounding box. Exactly one should be set; the point wins when
// both are.
type SegmentHint struct {
	Point *image.Point
	Box   *image.Rectangle
}

// Segmentation is a successful segmentation: the object's binary mask
// (255 foreground) and the mask's center.
type Segmentation struct {
	Center image.Point
	Mask   *image.Gray
}

// Segmenter calls the segmentation service over HTTP. A nil result with a nil
// error means the service found nothing at the hint.
type Segmenter struct {
	base   string
	hc     *http.Client
	logger logging.Logger
}

// NewSegmenter builds a client for the segmentation service at baseURL.
func NewSegmenter(baseURL string, timeout time.Duration, logger logging.Logger) *Segmenter {
	if timeout <= 0 {
		timeout = defaultSegmentTimeout
	}
	return &Segmenter{
		base:   strings.TrimRight(baseURL, "/"),
		hc:     &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type segmentRequest struct {
	Image string `json:"image"` // base64 JPEG
	Point []int  `json:"point,omitempty"`
	Box   []int  `json:"box,omitempty"`
}

type segmentResponse struct {
	Found  bool   `json:"found"`
	Center []int  `json:"center"`
	Mask   string `json:"mask"` // base64 PNG, 255 foreground
}

// Segment asks the service for the object mask at the hint.
func (s *Segmenter) Segment(ctx context.Context, img image.Image, hint SegmentHint) (*Segmentation, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	if hint.Point == nil && hint.Box == nil {
		return nil, ErrNoHint
	}

	jpg, err := rimage.EncodeImage(ctx, img, rdkutils.MimeTypeJPEG)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	reqBody := segmentRequest{Image: base64.StdEncoding.EncodeToString(jpg)}
	if hint.Point != nil {
		reqBody.Point = []int{hint.Point.X, hint.Point.Y}
	} else {
		reqBody.Box = []int{hint.Box.Min.X, hint.Box.Min.Y, hint.Box.Max.X, hint.Box.Max.Y}
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal segment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/segment", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build segment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call segmenter: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("segmenter returned status %d", resp.StatusCode)
	}

	var body segmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode segment response: %w", err)
	}
	if !body.Found {
		return nil, nil
	}
	if len(body.Center) != 2 || body.Mask == "" {
		return nil, fmt.Errorf("segmenter reply missing center or mask")
	}

	raw, err := base64.StdEncoding.DecodeString(body.Mask)
	if err != nil {
		return nil, fmt.Errorf("decode mask: %w", err)
	}
	maskImg, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode mask png: %w", err)
	}
	return &Segmentation{
		Center: image.Point{X: body.Center[0], Y: body.Center[1]},
		Mask:   toGray(maskImg),
	}, nil
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	draw.Draw(g, b, img, b.Min, draw.Src)
	return g
}
