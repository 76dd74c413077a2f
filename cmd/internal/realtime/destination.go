package realtime

// Destination kinds.
const (
	DestinationChannel = "channel"
	DestinationDirect  = "direct"
)

// Destination is what a connection attaches to for its lifetime: a shared
// channel, or the synthetic per-identity inbox used for direct messages.
type Destination struct {
	Kind string
	ID   string
}

// ChannelDestination returns the destination for a channel.
func ChannelDestination(channelID string) Destination {
	return Destination{Kind: DestinationChannel, ID: channelID}
}

// InboxDestination returns the direct-message inbox destination of an identity.
func InboxDestination(identity string) Destination {
	return Destination{Kind: DestinationDirect, ID: identity}
}

// IsChannel reports whether the destination is a shared channel.
func (d Destination) IsChannel() bool { return d.Kind == DestinationChannel }

func (d Destination) String() string { return d.Kind + ":" + d.ID }
