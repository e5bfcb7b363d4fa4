package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Camera perspectives a capture host can record.
const (
	PerspectiveTop  = "top"
	PerspectiveSide = "side"
)

// Publication modes for artifacts leaving scratch storage.
const (
	TransferCopy = "copy"
	TransferMove = "move"
)

// Locations holds the roots resolved for one user on one capture host.
type Locations struct {
	InputRoot   string
	OutputRoot  string
	ScratchRoot string
	Perspective string
	// KnownHost is false when the source host had no [hosts] entry and the
	// user-level roots were used instead.
	KnownHost bool
}

// ResolveLocations derives the input and output roots for a user's
// recordings from a capture host. Unknown hosts resolve to the user's base
// directory with the top perspective.
func (c *Config) ResolveLocations(user, srcHost string) (Locations, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return Locations{}, errors.New("resolve locations: user is required")
	}
	if strings.ContainsAny(user, `/\`) || user == "." || user == ".." {
		return Locations{}, fmt.Errorf("resolve locations: invalid user %q", user)
	}

	host, known := c.Hosts[strings.ToLower(strings.TrimSpace(srcHost))]
	loc := Locations{
		InputRoot:   c.Paths.InputBase,
		OutputRoot:  c.Paths.OutputBase,
		ScratchRoot: c.Paths.ScratchDir,
		Perspective: PerspectiveTop,
		KnownHost:   known,
	}
	if known {
		loc.Perspective = host.Perspective
	}
	if c.Paths.UseAbsoluteLocations {
		return loc, nil
	}

	loc.InputRoot = filepath.Join(c.Paths.InputBase, user)
	loc.OutputRoot = filepath.Join(c.Paths.OutputBase, user)
	if known && host.CamLocation != "" {
		loc.InputRoot = filepath.Join(loc.InputRoot, filepath.FromSlash(host.CamLocation))
		loc.OutputRoot = filepath.Join(loc.OutputRoot, filepath.FromSlash(host.CamLocation))
	}
	return loc, nil
}

// Run is the immutable per-invocation configuration threaded through every
// component. It is built once by the CLI and passed by value.
type Run struct {
	ID          string
	User        string
	SourceHost  string
	ComputeHost string
	Task        string
	Debug       bool
	Workers     int
	Locations   Locations
}
