// Package moviebuild implements the movies_built stage: every trial's frame
// directory is encoded into a pair of videos in the work-unit's scratch
// directory. Trials whose video already exists are not rebuilt.
package moviebuild
