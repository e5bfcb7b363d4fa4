// Package framedata implements the terminal frame_data_written stage, which
// exports one spreadsheet per trial from the top-view coordinates.
package framedata
