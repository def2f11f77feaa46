package logisim

import "errors"

// Configuration errors. These describe contract violations that are rejected
// before any work reaches a backend.
var (
	// ErrLengthMismatch indicates the current and next node arrays differ in length.
	ErrLengthMismatch = errors.New("logisim: node array lengths differ")

	// ErrGridCoverage indicates a dispatch grid does not cover the node array exactly.
	ErrGridCoverage = errors.New("logisim: dispatch grid does not cover node range exactly")

	// ErrNodeOutOfRange indicates a node address at or beyond the node count.
	ErrNodeOutOfRange = errors.New("logisim: node address out of range")

	// ErrAtlasOverflow indicates an atlas coordinate beyond the texture size.
	ErrAtlasOverflow = errors.New("logisim: atlas coordinate exceeds texture size")

	// ErrInvalidSource indicates a node source with an unknown kind or bad output bit.
	ErrInvalidSource = errors.New("logisim: invalid node source")

	// ErrUnknownTable indicates a table source referencing a missing truth table.
	ErrUnknownTable = errors.New("logisim: unknown truth table")

	// ErrTooManyInputs indicates a truth table wider than MaxTableInputs.
	ErrTooManyInputs = errors.New("logisim: truth table has too many inputs")

	// ErrInvalidMesh indicates an index buffer that is not a triangle list
	// over the mesh's own vertices.
	ErrInvalidMesh = errors.New("logisim: invalid mesh")
)

// Runtime errors.
var (
	// ErrBackendClosed is returned by operations on a closed backend or simulator.
	ErrBackendClosed = errors.New("logisim: backend closed")

	// ErrUnsupportedRule indicates a backend cannot execute the given rule.
	// The simulator falls back to the software backend when it sees this.
	ErrUnsupportedRule = errors.New("logisim: rule not supported by backend")

	// ErrNoBackend indicates no backend with the requested name is registered.
	ErrNoBackend = errors.New("logisim: no such backend")

	// ErrTickTimeout indicates the update kernel did not complete in time.
	ErrTickTimeout = errors.New("logisim: tick did not complete in time")

	// ErrNotLoaded indicates a backend was used before Load.
	ErrNotLoaded = errors.New("logisim: backend has no node arrays loaded")
)
