// Package textutil provides the natural ordering used for trial folders and
// frame images, so "2" sorts before "10" and "frame9.jpg" before
// "frame10.jpg".
package textutil
