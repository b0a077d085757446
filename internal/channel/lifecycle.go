package channel

// LifecycleKind tags events emitted by a pairing transport while a
// connection attempt is in flight.
type LifecycleKind string

const (
	LifecycleQR           LifecycleKind = "qr"
	LifecycleOpen         LifecycleKind = "open"
	LifecycleClose        LifecycleKind = "close"
	LifecycleCredsUpdated LifecycleKind = "creds_updated"
)

// Close codes the session manager classifies. Anything else is treated as a
// generic connection failure.
const (
	// CloseCodeLoggedOut means the remote side revoked the pairing; the
	// credentials are gone and a full re-pair is required.
	CloseCodeLoggedOut = 401
	// CloseCodeRestartRequired is a stream error the socket layer recovers
	// from by reconnecting on its own; not a state change.
	CloseCodeRestartRequired = 515
	// CloseCodeReplaced means another socket took over this session.
	CloseCodeReplaced = 440
)

// LifecycleEvent is one tagged event in a pairing attempt's event stream.
type LifecycleEvent struct {
	Kind   LifecycleKind
	QRCode string // set for LifecycleQR
	Code   int    // set for LifecycleClose
	Err    error
}

// PairingTransport is a live connection attempt against a personal network.
// Events delivers lifecycle events in the order the socket emits them; the
// channel is never closed by the transport, consumers stop via their own
// cancellation. Close releases the socket and is safe to call repeatedly.
type PairingTransport interface {
	Events() <-chan LifecycleEvent
	Close() error
}
