package robot2

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	viz "github.com/viam-labs/motion-tools/client/client"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/spatialmath"

	boxpose "github.com/IcedVodka/robot2/box_pose"
)

// exportMaskedPCD writes the segmented region of the attempt's frame to a PCD
// file for offline inspection. The cloud covers the mask's bounding box, or
// the detection box when no mask was recorded.
func (r *Robot) exportMaskedPCD(att *pickAttempt) error {
	if att.frame.Depth == nil {
		return fmt.Errorf("frame has no depth payload")
	}
	crop := att.box
	if att.seg != nil {
		crop = maskBounds(att.seg.Mask)
	}
	if crop.Empty() {
		return fmt.Errorf("empty crop region")
	}

	cloud, err := att.side.pipe.Intrinsics().RGBDToPointCloud(att.frame.Color, att.frame.Depth, crop)
	if err != nil {
		return fmt.Errorf("build point cloud: %w", err)
	}

	dir := r.cfg.Debug.PCDDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s_%d.pcd", sanitizeName(r.task.Current), att.side.name, time.Now().Unix()))
	if err := savePointCloudToPCD(cloud, path); err != nil {
		return err
	}
	r.logger.Infof("Saved %d-point cloud of %s to %s", cloud.Size(), r.task.Current, path)
	return nil
}

// maskBounds returns the bounding box of the mask's foreground pixels.
func maskBounds(mask *image.Gray) image.Rectangle {
	var r image.Rectangle
	b := mask.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask.GrayAt(x, y).Y > 0 {
				r = r.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return r
}

// sanitizeName makes a medicine name safe for use in a file name.
func sanitizeName(name string) string {
	return strings.Map(func(c rune) rune {
		switch c {
		case '/', '\\', ' ', ':':
			return '_'
		}
		return c
	}, name)
}

// savePointCloudToPCD writes a point cloud to a PCD file in binary format.
func savePointCloudToPCD(cloud pointcloud.PointCloud, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	if err := pointcloud.ToPCD(cloud, file, pointcloud.PCDBinary); err != nil {
		return fmt.Errorf("write PCD: %w", err)
	}

	return nil
}

// drawGraspWaypoints sends the waypoint triple to the motion visualizer.
func drawGraspWaypoints(side string, wps boxpose.Waypoints) error {
	poses := []spatialmath.Pose{
		rdkPoseFromVec(wps.Object),
		rdkPoseFromVec(wps.Prepared),
		rdkPoseFromVec(wps.Final),
	}
	names := []string{side + "_object", side + "_prepared", side + "_final"}
	return viz.DrawPoses(poses, names, true)
}
