package pusherproto

import "testing"

func TestValidateChannelName(t *testing.T) {
	cases := map[string]bool{
		"news":            true,
		"private-chat":    true,
		"presence-lobby":  true,
		"with spaces":     false,
		"":                false,
	}
	for name, want := range cases {
		if got := ValidateChannelName(name); got != want {
			t.Errorf("ValidateChannelName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestValidateChannelsRejectsTooMany(t *testing.T) {
	channels := make([]string, MaxTriggerChannels+1)
	for i := range channels {
		channels[i] = "news"
	}
	if ok, _ := ValidateChannels(channels); ok {
		t.Fatalf("expected rejection of more than %d channels", MaxTriggerChannels)
	}
}

func TestValidateChannelsAcceptsWithinLimit(t *testing.T) {
	ok, reason := ValidateChannels([]string{"news", "private-chat"})
	if !ok {
		t.Fatalf("expected acceptance, got reason %q", reason)
	}
}
