// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios without
// string matching on driver errors.
package repository

import "errors"

// ErrEmailExists is returned when registering with an address that is
// already taken. Handlers should translate this into an HTTP 409.
var ErrEmailExists = errors.New("email already exists")

// ErrTeamFull is returned when joining a team that already has the
// maximum number of members. Handlers should translate this into 409.
var ErrTeamFull = errors.New("team is full")

// ErrAlreadyInTeam is returned when a user who already belongs to a team
// attempts to create or join another one.
var ErrAlreadyInTeam = errors.New("already in a team")

// ErrNotInTeam is returned when leaving a team the user is not part of.
var ErrNotInTeam = errors.New("not in a team")
