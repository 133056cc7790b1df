package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(requestTransitions.WithLabelValues("exchange", "approved"))
	RecordRequestTransition("exchange", "approved")
	assert.Equal(t, before+1, testutil.ToFloat64(requestTransitions.WithLabelValues("exchange", "approved")))

	before = testutil.ToFloat64(notificationFailures.WithLabelValues("request_created"))
	RecordNotificationFailure("request_created")
	assert.Equal(t, before+1, testutil.ToFloat64(notificationFailures.WithLabelValues("request_created")))

	before = testutil.ToFloat64(conversationCommands.WithLabelValues("help"))
	RecordConversationCommand("help")
	assert.Equal(t, before+1, testutil.ToFloat64(conversationCommands.WithLabelValues("help")))
}
