package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCustomIDRoundTrip(t *testing.T) {
	verb, ticketID, extra, ok := ParseCustomID(CustomID("accept", "tck-42"))
	assert.True(t, ok)
	assert.Equal(t, "accept", verb)
	assert.Equal(t, "tck-42", ticketID)
	assert.Empty(t, extra)

	verb, ticketID, extra, ok = ParseCustomID(CustomID("decide", "tck-42", "challenger"))
	assert.True(t, ok)
	assert.Equal(t, "decide", verb)
	assert.Equal(t, "tck-42", ticketID)
	assert.Equal(t, "challenger", extra)
}

func TestParseCustomIDRejectsForeignIDs(t *testing.T) {
	cases := []string{
		"",
		"accept:tck-42",
		"wager::tck-42",
		"wager:accept:",
		"poll:vote:tck-42",
		"wager:decide:tck-42:challenger:junk",
	}
	for _, customID := range cases {
		_, _, _, ok := ParseCustomID(customID)
		assert.False(t, ok, "customID=%q", customID)
	}
}
