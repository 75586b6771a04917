package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/rimage"
)

// CameraSource adapts a machine camera resource to the Source interface.
// RGB-D cameras expose their color and depth planes as named images; the
// source names are configurable because they differ between camera models.
type CameraSource struct {
	cam       camera.Camera
	colorName string
	depthName string
	wantDepth bool
}

// NewCameraSource wraps cam. colorName and depthName select the named images
// to use for the two planes; wantDepth makes a missing depth plane an
// acquisition error rather than a color-only frame.
func NewCameraSource(cam camera.Camera, colorName, depthName string, wantDepth bool) *CameraSource {
	return &CameraSource{
		cam:       cam,
		colorName: colorName,
		depthName: depthName,
		wantDepth: wantDepth,
	}
}

// Open verifies the camera is reachable by pulling one frame set.
func (c *CameraSource) Open(ctx context.Context) error {
	if c.cam == nil {
		return errors.New("no camera resource")
	}
	if _, _, err := c.cam.Images(ctx, nil, nil); err != nil {
		return fmt.Errorf("probe camera: %w", err)
	}
	return nil
}

// Acquire pulls one synchronized color(+depth) frame from the camera.
func (c *CameraSource) Acquire(ctx context.Context) (*Frame, error) {
	images, _, err := c.cam.Images(ctx, nil, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrAcquireTimeout, err)
		}
		return nil, err
	}

	frame := &Frame{Stamp: time.Now()}
	for i := range images {
		ni := &images[i]
		switch ni.SourceName {
		case c.colorName:
			img, err := ni.Image(ctx)
			if err != nil {
				return nil, fmt.Errorf("decode color image: %w", err)
			}
			frame.Color = rimage.ConvertImage(img)
		case c.depthName:
			img, err := ni.Image(ctx)
			if err != nil {
				return nil, fmt.Errorf("decode depth image: %w", err)
			}
			dm, err := rimage.ConvertImageToDepthMap(ctx, img)
			if err != nil {
				return nil, fmt.Errorf("convert depth image: %w", err)
			}
			frame.Depth = dm
		}
	}

	if frame.Color == nil {
		return nil, fmt.Errorf("camera returned no image named %q", c.colorName)
	}
	if c.wantDepth && frame.Depth == nil {
		return nil, fmt.Errorf("camera returned no depth image named %q", c.depthName)
	}
	return frame, nil
}

// Close releases nothing: the camera resource is owned by the machine client
// and stays usable for other consumers.
func (c *CameraSource) Close() error {
	return nil
}
