package geometry

import (
	"math"
	"testing"
)

func TestSelectClosestEmpty(t *testing.T) {
	if _, ok := SelectClosest(nil); ok {
		t.Errorf("Expected no selection for empty input")
	}
}

func TestSelectClosestPicksMinimumDistance(t *testing.T) {
	points := []Point3D{{X: 3}, {X: 1}, {X: 2}}
	got, ok := SelectClosest(points)
	if !ok {
		t.Fatalf("Expected a selection")
	}
	if got != (Point3D{X: 1}) {
		t.Errorf("SelectClosest = %v, want (1,0,0)", got)
	}
}

func TestSelectClosestTieKeepsFirst(t *testing.T) {
	points := []Point3D{{X: 2}, {Y: 1}, {Z: -1}}
	got, _ := SelectClosest(points)
	if got != (Point3D{Y: 1}) {
		t.Errorf("SelectClosest = %v, want first point at distance 1", got)
	}
}

func TestSelectClosestSkipsNaN(t *testing.T) {
	points := []Point3D{{X: math.NaN()}, {Z: 4}}
	got, ok := SelectClosest(points)
	if !ok || got != (Point3D{Z: 4}) {
		t.Errorf("SelectClosest = %v (ok=%v), want (0,0,4)", got, ok)
	}
}
