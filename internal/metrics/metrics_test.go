package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterPresence_GaugeFunc(t *testing.T) {
	reg := prometheus.NewRegistry()
	n := 3
	require.NoError(t, RegisterPresence(reg, func() int { return n }))

	count, err := testutil.GatherAndCount(reg, "chat_presence_entries")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expected := `
# HELP chat_presence_entries Identities currently tracked as present.
# TYPE chat_presence_entries gauge
chat_presence_entries 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "chat_presence_entries"))

	assert.Error(t, RegisterPresence(reg, func() int { return 0 }), "duplicate registration")
}

func TestHandler_ExposesCounters(t *testing.T) {
	MessagesRelayed.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chat_messages_relayed_total")
}
