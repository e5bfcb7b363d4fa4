// Package pose drives the external pose-estimation analyzer. Each call
// analyzes one video against a trained model and leaves coordinate CSVs
// (raw and filtered) next to the video, named <video-stem>DLC<model>.csv and
// <video-stem>DLC<model>_filtered.csv.
package pose
