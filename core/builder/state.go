package builder

import (
	"fmt"
	"strings"
)

type State int

const (
	Idle State = iota
	Validating
	TreeBuilding
	Packing
	ManifestWriting
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Validating:
		return "Validating"
	case TreeBuilding:
		return "TreeBuilding"
	case Packing:
		return "Packing"
	case ManifestWriting:
		return "ManifestWriting"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// transitions lists the states reachable from each state. Packing and
// ManifestWriting repeat once per package and build type.
var transitions = map[State][]State{
	Idle:            {Validating},
	Validating:      {TreeBuilding, Failed},
	TreeBuilding:    {Packing, Done, Failed},
	Packing:         {ManifestWriting, Failed},
	ManifestWriting: {Packing, Done, Failed},
	Done:            {Validating},
	Failed:          {Validating},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type BuildType int

const (
	Local BuildType = iota
	Remote
)

func (t BuildType) String() string {
	if t == Local {
		return "local"
	}
	return "remote"
}

// ParseBuildTypes accepts local, remote or both. Both builds local first.
func ParseBuildTypes(s string) ([]BuildType, error) {
	switch strings.ToLower(s) {
	case "local":
		return []BuildType{Local}, nil
	case "remote":
		return []BuildType{Remote}, nil
	case "both", "":
		return []BuildType{Local, Remote}, nil
	default:
		return nil, fmt.Errorf("unknown build type %q (expected local, remote or both)", s)
	}
}
