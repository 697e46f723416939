package pusherproto

import "regexp"

// MaxTriggerChannels is the maximum number of channels a single trigger
// request may target.
const MaxTriggerChannels = 10

// MaxChannelNameLength is the maximum length, in runes, of a channel name.
const MaxChannelNameLength = 200

var channelNamePattern = regexp.MustCompile(`^[-a-zA-Z0-9_=@,.;]+$`)

// ValidateChannelName reports whether name is an acceptable channel name:
// non-empty, at most MaxChannelNameLength runes, matching
// ^[-a-zA-Z0-9_=@,.;]+$.
func ValidateChannelName(name string) bool {
	if name == "" || len([]rune(name)) > MaxChannelNameLength {
		return false
	}
	return channelNamePattern.MatchString(name)
}

// ValidateChannels reports whether channels is an acceptable trigger target
// list: at most MaxTriggerChannels entries, each a valid channel name.
func ValidateChannels(channels []string) (ok bool, reason string) {
	if len(channels) > MaxTriggerChannels {
		return false, "cannot trigger on more than 10 channels"
	}
	for _, c := range channels {
		if !ValidateChannelName(c) {
			return false, "channels must be formatted as such: ^[-a-zA-Z0-9_=@,.;]+$"
		}
	}
	return true, ""
}
