package state

import (
	"context"
	"errors"
)

// ErrNoSnapshot is returned by a Store when nothing was saved for a kind
var ErrNoSnapshot = errors.New("no snapshot stored")

// Kind names one persisted document
type Kind string

const (
	KindSettings Kind = "settings"
	KindState    Kind = "state"
	KindAuth     Kind = "auth"
)

// Store persists opaque documents by kind
type Store interface {
	Save(ctx context.Context, kind Kind, v interface{}) error
	Load(ctx context.Context, kind Kind, v interface{}) error
}
