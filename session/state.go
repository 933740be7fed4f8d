// Package session is the client side of tap to pay: one Session owns the
// terminal SDK and moves through discover, connect, collect and process,
// calling the terminal server at each step.
package session

// State of a terminal session
type State string

const (
	Uninitialized     State = "uninitialized"
	Initialized       State = "initialized"
	ReadersDiscovered State = "readers_discovered"
	ReaderConnected   State = "reader_connected"
	CollectingPayment State = "collecting_payment"
	ProcessingPayment State = "processing_payment"
	Settled           State = "settled"
	Failed            State = "failed"
)

// transitions lists the allowed next states for each state.
var transitions = map[State][]State{
	Uninitialized:     {Initialized, Failed},
	Initialized:       {ReadersDiscovered, Failed},
	ReadersDiscovered: {ReaderConnected, Initialized, Failed},
	ReaderConnected:   {CollectingPayment, Initialized, Failed},
	CollectingPayment: {ProcessingPayment, Failed},
	ProcessingPayment: {Settled, Failed},
	Settled:           {ReaderConnected, Initialized},
	Failed:            {Initialized, ReaderConnected},
}

// CanTransition reports whether from -> to is a valid move
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends the current charge attempt
func (s State) Terminal() bool {
	return s == Settled || s == Failed
}

func (s State) String() string {
	return string(s)
}
