package main

import (
	"context"
)

// ButtonSource produces raw (undebounced) button edges and feeds them into
// the debouncer, which publishes clean events onto the bus.
type ButtonSource interface {
	Run(ctx context.Context) error
}

// buttonKeymap translates Linux input key codes to the player's buttons.
var buttonKeymap = map[uint16]ButtonID{
	KEY_PLAYPAUSE:    ButtonPlayPause,
	KEY_NEXTSONG:     ButtonNext,
	KEY_PREVIOUSSONG: ButtonPrev,
	KEY_MENU:         ButtonMenu,
	KEY_SELECT:       ButtonSelect,
}

// simButtonSource is the no-hardware stand-in: it produces no edges and just
// waits out the context. Button behavior is exercised over IPC and in tests.
type simButtonSource struct{}

func (simButtonSource) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
