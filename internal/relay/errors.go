package relay

import "errors"

// ErrSessionActive indicates a start was attempted while another session is in flight.
var ErrSessionActive = errors.New("a completion session is already active")

// ErrInvalidDescriptor indicates the request descriptor failed validation.
var ErrInvalidDescriptor = errors.New("invalid request descriptor")

// ErrInvalidTurn indicates a history turn with an unknown role.
var ErrInvalidTurn = errors.New("invalid history turn")

// ErrShuttingDown indicates a start was attempted after Shutdown began.
var ErrShuttingDown = errors.New("relay is shutting down")
