// Package transform drives the geometric view splitter and the frame-data
// writer. Both read a trial's filtered coordinates; the splitter renders the
// left and right whisker views as derived videos and the writer exports the
// per-frame head angle and landmark table as a spreadsheet.
package transform
