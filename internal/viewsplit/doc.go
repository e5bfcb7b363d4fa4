// Package viewsplit implements the left_right_split stage: each trial video
// is rotated to the head angle recorded in its filtered coordinates and cut
// into a masked left view and a mirrored right view.
package viewsplit
