// Package postures implements the three pose-analysis stages. The top view
// is analyzed per trial video; the left and right stages analyze the masked
// and mirrored views derived from it with the whisker model.
package postures
