package channel

import "fmt"

// ConnectError is returned when a session cannot be established: invalid
// credentials, unreachable network, or a proxy that cannot be set up.
type ConnectError struct {
	ChannelType Type
	Reason      string
	Err         error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s connect failed: %s: %v", e.ChannelType, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s connect failed: %s", e.ChannelType, e.Reason)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// DeliveryError is returned when a send is rejected: channel not connected,
// invalid peer, or the remote network refused the payload.
type DeliveryError struct {
	ChannelType Type
	Reason      string
	Err         error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s delivery failed: %s: %v", e.ChannelType, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s delivery failed: %s", e.ChannelType, e.Reason)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
