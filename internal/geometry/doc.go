// Package geometry provides the planar primitives used to fit and score card
// boundaries: points, polygons, convex hulls, line intersections and convex
// clipping.
//
// # Coordinate System
//
// Coordinates follow the image convention used throughout the module: (0,0) is
// the top-left pixel, X increases rightward and Y increases downward. Polygon
// "counter-clockwise" order means ascending atan2 angle around the vertex
// average, which is clockwise on screen because Y points down. Every function
// that depends on winding accepts either orientation.
//
// # Polygons
//
// A Polygon is a closed ring stored without the closing duplicate vertex. The
// types are plain values: functions never mutate their inputs and return fresh
// slices.
//
// # Degenerate Input
//
// LineIntersection reports parallel or non-finite intersections through its
// boolean result rather than NaN coordinates, so callers can skip a candidate
// without inspecting the point.
package geometry
