// Package ffmpeg assembles an ordered directory of frame images into the two
// per-trial video containers: an uncompressed .avi consumed by downstream
// analysis and a compressed .mp4 for review.
package ffmpeg
