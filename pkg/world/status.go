package world

import (
	"fmt"
	"strings"
)

type Status int

const (
	StatusNotStarted Status = iota + 1
	StatusInProgress
	StatusAlmostFinished
	StatusFinished
	StatusArchive
	StatusHidden
)

var statusNames = [...]string{"", "NOT_STARTED", "IN_PROGRESS", "ALMOST_FINISHED", "FINISHED", "ARCHIVE", "HIDDEN"}

func (s Status) String() string {
	if s > 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "UNKNOWN"
}

// Stage is the ordering key of a status, NOT_STARTED being 1 and HIDDEN 6.
func (s Status) Stage() int { return int(s) }

func (s Status) Valid() bool { return s >= StatusNotStarted && s <= StatusHidden }

func ParseStatus(name string) (Status, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i := 1; i < len(statusNames); i++ {
		if statusNames[i] == name {
			return Status(i), true
		}
	}
	return 0, false
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid world status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, ok := ParseStatus(string(text))
	if !ok {
		return fmt.Errorf("unknown world status %q", text)
	}
	*s = parsed
	return nil
}

type Type int

const (
	TypeNormal Type = iota
	TypeFlat
	TypeNether
	TypeEnd
	TypeVoid
	TypeTemplate
	TypePrivate
	TypeImported
	TypeCustom
	TypeUnknown
)

var typeNames = [...]string{"NORMAL", "FLAT", "NETHER", "END", "VOID", "TEMPLATE", "PRIVATE", "IMPORTED", "CUSTOM", "UNKNOWN"}

func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "UNKNOWN"
}

// ParseType falls back to TypeUnknown for names it does not recognise, the
// same way legacy records without a type are treated.
func ParseType(name string) Type {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, n := range typeNames {
		if n == name {
			return Type(i)
		}
	}
	return TypeUnknown
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(text []byte) error {
	*t = ParseType(string(text))
	return nil
}

// DefaultIcon is the navigator icon a new public world of this type receives.
func (t Type) DefaultIcon() string {
	switch t {
	case TypeNormal:
		return "GRASS_BLOCK"
	case TypeFlat:
		return "GRASS_BLOCK"
	case TypeNether:
		return "NETHERRACK"
	case TypeEnd:
		return "END_STONE"
	case TypeVoid:
		return "GLASS"
	case TypeTemplate:
		return "FILLED_MAP"
	case TypeImported:
		return "FURNACE"
	case TypeCustom:
		return "COMMAND_BLOCK"
	default:
		return "BEDROCK"
	}
}

// PlayerHeadIcon marks private worlds, which are displayed with their
// creator's head.
const PlayerHeadIcon = "PLAYER_HEAD"

type Visibility int

const (
	VisibilityPublic Visibility = iota
	VisibilityPrivate
)

func (v Visibility) String() string {
	if v == VisibilityPrivate {
		return "private"
	}
	return "public"
}

func VisibilityOf(private bool) Visibility {
	if private {
		return VisibilityPrivate
	}
	return VisibilityPublic
}

type Difficulty int

const (
	DifficultyPeaceful Difficulty = iota
	DifficultyEasy
	DifficultyNormal
	DifficultyHard
)

var difficultyNames = [...]string{"PEACEFUL", "EASY", "NORMAL", "HARD"}

func (d Difficulty) String() string {
	if d >= 0 && int(d) < len(difficultyNames) {
		return difficultyNames[d]
	}
	return "PEACEFUL"
}

// Next cycles PEACEFUL -> EASY -> NORMAL -> HARD -> PEACEFUL.
func (d Difficulty) Next() Difficulty {
	return (d + 1) % Difficulty(len(difficultyNames))
}

func ParseDifficulty(name string) (Difficulty, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, n := range difficultyNames {
		if n == name {
			return Difficulty(i), true
		}
	}
	return DifficultyPeaceful, false
}

func (d Difficulty) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Difficulty) UnmarshalText(text []byte) error {
	parsed, ok := ParseDifficulty(string(text))
	if !ok {
		return fmt.Errorf("unknown difficulty %q", text)
	}
	*d = parsed
	return nil
}
