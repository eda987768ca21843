package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestEventSubscriptions tests per-client event filtering.
func TestEventSubscriptions(t *testing.T) {
	subs := newEventSubscriptions()

	assert.False(t, subs.matches("stake"), "no subscriptions match nothing")

	subs.subscribe("stake")
	assert.True(t, subs.matches("stake"))
	assert.False(t, subs.matches("tier.changed"))

	subs.subscribe("*")
	assert.True(t, subs.matches("tier.changed"), "wildcard matches everything")

	subs.unsubscribe("*")
	subs.unsubscribe("stake")
	assert.False(t, subs.matches("stake"))
}
