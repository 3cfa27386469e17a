package rfr

import (
	"errors"
	"fmt"
)

var (
	//ErrUnknownGroup is returned by commands given a group ID with no managed message
	ErrUnknownGroup = errors.New("unknown managed message")
	//ErrBindingLimit is returned when a managed message cannot hold any more bindings
	ErrBindingLimit = errors.New("managed message binding limit reached")
)

//ResolutionKind identifies which entity could not be found whilst resolving an event
type ResolutionKind int

//Resolution failure kinds
const (
	UnknownMember ResolutionKind = iota + 1
	UnknownChannel
	UnknownMessage
	UnknownField
	UnknownRole
)

func (k ResolutionKind) String() string {
	switch k {
	case UnknownMember:
		return "UNKNOWN_MEMBER"
	case UnknownChannel:
		return "UNKNOWN_CHANNEL"
	case UnknownMessage:
		return "UNKNOWN_MESSAGE"
	case UnknownField:
		return "UNKNOWN_FIELD"
	case UnknownRole:
		return "UNKNOWN_ROLE"
	default:
		return "UNKNOWN"
	}
}

//ResolutionError is raised when a member, channel, message, embed field or role referenced by an event or
//a stored binding no longer exists on the platform.
type ResolutionError struct {
	Kind    ResolutionKind
	ID      string
	GuildID string
	Err     error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v %v in guild %v: %v", e.Kind, e.ID, e.GuildID, e.Err)
	}
	return fmt.Sprintf("%v %v in guild %v", e.Kind, e.ID, e.GuildID)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

//IsResolution reports whether err is a ResolutionError of the given kind
func IsResolution(err error, kind ResolutionKind) bool {
	var re *ResolutionError
	return errors.As(err, &re) && re.Kind == kind
}

//ParseError describes a single line of operator input which could not be interpreted
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d (`%v`): %v", e.Line, e.Text, e.Reason)
}
