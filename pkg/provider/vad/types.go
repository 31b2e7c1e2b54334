package vad

import "github.com/MrWong99/vadcal/pkg/types"

// VADEvent is an alias for [types.VADEvent] so that engine implementations can
// refer to it without importing the shared types package.
type VADEvent = types.VADEvent
