package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSource(t *testing.T) {
	before := testutil.ToFloat64(SourceFetchTotal.WithLabelValues("work", StatusFetchError))
	RecordSource("work", StatusFetchError)
	RecordSource("work", StatusFetchError)

	after := testutil.ToFloat64(SourceFetchTotal.WithLabelValues("work", StatusFetchError))
	assert.Equal(t, before+2, after)
}

func TestRecordRender(t *testing.T) {
	before := testutil.ToFloat64(RenderTotal.WithLabelValues("http", "ok"))
	RecordRender("http", "ok", 0.25)

	assert.Equal(t, before+1, testutil.ToFloat64(RenderTotal.WithLabelValues("http", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(RenderDuration, "kindlecal_render_duration_seconds"))
}
