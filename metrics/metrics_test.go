package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCountersReachTheSink(t *testing.T) {
	sink, err := Setup("kafkamux", time.Minute)
	require.NoError(t, err)

	Incr(DispatchRefused, Label("reason", "unknown_kind"))
	Incr(DispatchRefused, Label("reason", "unknown_kind"))
	Incr(FanoutCreated)

	require.Equal(t, float64(2), Counter(sink, "kafkamux.dispatch.refused;reason=unknown_kind"))
	require.Equal(t, float64(1), Counter(sink, "kafkamux.fanout.created"))
	require.Zero(t, Counter(sink, "kafkamux.fanout.evicted"))
}
