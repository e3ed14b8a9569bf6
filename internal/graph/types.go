package graph

import (
	"fmt"
	"math"
	"path/filepath"
)

// ID identifies a function, line, instruction or edge within one Graph.
// IDs come from a single monotonically increasing counter and are never reused.
type ID uint32

// Version is a program version number. The first version is 1.
type Version uint32

// Reserved line numbers. Virtual entry/exit lines carry these in every version,
// so they never take part in diff matching.
const (
	// NoLine marks a line that does not exist in a version.
	NoLine int64 = 0

	// EntryLine is the line number of every virtual entry line.
	EntryLine int64 = math.MaxUint32 - 1

	// ExitLine is the line number of every virtual exit line.
	ExitLine int64 = math.MaxUint32 - 2
)

// IsVirtualLineNumber reports whether n is one of the reserved sentinels.
func IsVirtualLineNumber(n int64) bool {
	return n == EntryLine || n == ExitLine
}

// EdgeType is the kind of control-flow relationship between two instructions.
// An edge's type never changes after creation.
type EdgeType int

const (
	// EdgeSequential links consecutive instructions, or a line to the next line.
	EdgeSequential EdgeType = iota

	// EdgeBranch links a terminator to the head of a successor block.
	EdgeBranch

	// EdgeCall links a call site to a callee entry, or a callee exit back to the call site.
	EdgeCall

	// EdgeExternalCall links a call site to the shared external node.
	EdgeExternalCall

	// EdgeVirtual links a virtual entry/exit to the function body.
	EdgeVirtual

	// EdgeAdded is created by a merge when no structural precedent was found for an added line.
	EdgeAdded

	// EdgeDeleted is created by a merge when bridging over deleted lines without a precedent.
	EdgeDeleted

	numEdgeTypes
)

var edgeTypeNames = [numEdgeTypes]string{
	EdgeSequential:   "sequential",
	EdgeBranch:       "branch",
	EdgeCall:         "call",
	EdgeExternalCall: "external_call",
	EdgeVirtual:      "virtual",
	EdgeAdded:        "added",
	EdgeDeleted:      "deleted",
}

// String returns the string representation of the EdgeType.
func (t EdgeType) String() string {
	if t >= 0 && t < numEdgeTypes {
		return edgeTypeNames[t]
	}
	return "unknown"
}

// ParseEdgeType converts a name produced by String back to an EdgeType.
func ParseEdgeType(s string) (EdgeType, error) {
	for i, name := range edgeTypeNames {
		if name == s {
			return EdgeType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown edge type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t EdgeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *EdgeType) UnmarshalText(b []byte) error {
	parsed, err := ParseEdgeType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// LineKind distinguishes source lines from the synthetic per-function lines.
type LineKind int

const (
	LineSource LineKind = iota
	LineEntry
	LineExit
)

// String returns the string representation of the LineKind.
func (k LineKind) String() string {
	switch k {
	case LineSource:
		return "source"
	case LineEntry:
		return "entry"
	case LineExit:
		return "exit"
	default:
		return "unknown"
	}
}

// ParseLineKind converts a name produced by String back to a LineKind.
func ParseLineKind(s string) (LineKind, error) {
	for _, k := range []LineKind{LineSource, LineEntry, LineExit} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown line kind %q", s)
}

// Sentinel returns the reserved line number for virtual kinds, or NoLine.
func (k LineKind) Sentinel() int64 {
	switch k {
	case LineEntry:
		return EntryLine
	case LineExit:
		return ExitLine
	default:
		return NoLine
	}
}

// Origin links an instruction back to the record it was extracted from.
// The zero Origin marks a synthetic (virtual) instruction.
type Origin struct {
	Version Version `json:"version"`
	Key     string  `json:"key"`
}

// IsZero reports whether o is the zero Origin.
func (o Origin) IsZero() bool {
	return o.Version == 0 && o.Key == ""
}

// Config carries per-graph settings that used to be process-wide state.
type Config struct {
	// Whitelist holds leaf call targets that never get call edges.
	Whitelist []string `json:"whitelist" mapstructure:"whitelist"`

	// ExternalFile and ExternalFunction name the shared node that receives
	// calls to code outside the program.
	ExternalFile     string `json:"external_file" mapstructure:"external_file"`
	ExternalFunction string `json:"external_function" mapstructure:"external_function"`
}

// DefaultConfig returns the default graph configuration.
func DefaultConfig() Config {
	return Config{
		Whitelist: []string{
			"__isoc99_scanf", "printf", "snprintf", "malloc", "free",
			"strlen", "strcpy", "strcmp", "strchr", "strcasecmp",
			"getpwnam", "setpwent", "getpwent", "__ctype_b_loc",
			"tolower", "toupper", "perror",
		},
		ExternalFile:     "External_Node_File",
		ExternalFunction: "External_Node_Func",
	}
}

// IsWhitelisted reports whether name is a whitelisted leaf call target.
func (c Config) IsWhitelisted(name string) bool {
	for _, w := range c.Whitelist {
		if w == name {
			return true
		}
	}
	return false
}

// SameFile reports whether two source file names refer to the same file.
// Versions are usually checked out under different roots, so only base names are compared.
func SameFile(a, b string) bool {
	return filepath.Base(a) == filepath.Base(b)
}
