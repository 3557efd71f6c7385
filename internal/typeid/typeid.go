package typeid

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

const (
	PrefixResult  = "result"
	PrefixMask    = "mask"
	PrefixObject  = "obj"
	PrefixOp      = "op"
	PrefixGesture = "gesture"
)

func New(prefix string) string {
	id := typeid.MustGenerate(prefix)
	return id.String()
}

func NewResultID() string  { return New(PrefixResult) }
func NewMaskID() string    { return New(PrefixMask) }
func NewObjectID() string  { return New(PrefixObject) }
func NewOpID() string      { return New(PrefixOp) }
func NewGestureID() string { return New(PrefixGesture) }

func Validate(id, expectedPrefix string) error {
	parsed, err := typeid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid typeid %q: %w", id, err)
	}
	if parsed.Prefix() != expectedPrefix {
		return fmt.Errorf("expected prefix %q but got %q in id %q", expectedPrefix, parsed.Prefix(), id)
	}
	return nil
}
