package monitoring

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/waypoints/internal/geom"
)

func samplePoses() []geom.Pose {
	return []geom.Pose{
		{Position: geom.Point{X: 1, Y: 2}, Orientation: geom.Identity},
		{Position: geom.Point{X: 3, Y: 4}, Orientation: geom.FromYaw(1)},
		{Position: geom.Point{X: 0, Y: 5}, Orientation: geom.FromYaw(-1)},
	}
}

func TestPathPlotter_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	pp := NewPathPlotter(dir)

	out, err := pp.Save("run-1", "map", samplePoses())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("plot not written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("plot file is empty")
	}
}

func TestPathPlotter_SaveEmpty(t *testing.T) {
	dir := t.TempDir()
	out, err := NewPathPlotter(dir).Save("empty", "map", nil)
	if err != nil || out != "" {
		t.Errorf("Save(nil) = %q, %v; want no file", out, err)
	}
}

func TestRenderPathChart(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderPathChart(&buf, geom.PoseArray{FrameID: "map", Poses: samplePoses()}); err != nil {
		t.Fatalf("RenderPathChart failed: %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, "Recorded waypoints") {
		t.Error("chart missing title")
	}
	if !strings.Contains(html, "frame=map count=3") {
		t.Error("chart missing subtitle")
	}
}

func TestPathPlotter_SaveSanitizesName(t *testing.T) {
	dir := t.TempDir()
	out, err := NewPathPlotter(dir).Save("../escape", "map", samplePoses())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if filepath.Dir(out) != dir {
		t.Errorf("plot written to %s, want inside %s", out, dir)
	}
}
