package domain

type ChannelName string

// Channel is a named multi-party call. Membership lives in the channel
// manager; this is just the meta record.
type Channel struct {
	Name ChannelName
}
