package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWITSObservations(t *testing.T) {
	var out witsResponse
	raw := `{"dataSets": [{"observations": {
		"0:0:0:0": [19.3, 1, 0],
		"0:0:0:1": [21.1]
	}}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &out))

	records := parseWITSObservations(out, "840", "CHN", "TOTAL")
	require.Len(t, records, 2)

	rates := map[string]float64{}
	for _, r := range records {
		assert.Equal(t, "840", r.Reporter)
		assert.Equal(t, "CHN", r.Partner)
		assert.Equal(t, "TOTAL", r.Product)
		rates[r.Key] = r.TariffRate
	}
	assert.Equal(t, 19.3, rates["0:0:0:0"])
	assert.Equal(t, 21.1, rates["0:0:0:1"])
}

func TestParseWITSObservationsEmpty(t *testing.T) {
	assert.Nil(t, parseWITSObservations(witsResponse{}, "840", "CHN", "TOTAL"))

	var out witsResponse
	require.NoError(t, json.Unmarshal([]byte(`{"dataSets": [{}]}`), &out))
	assert.Empty(t, parseWITSObservations(out, "840", "CHN", "TOTAL"))
}

func TestSampleTariffDataShape(t *testing.T) {
	require.Len(t, sampleTariffData, 3)
	for _, r := range sampleTariffData {
		assert.NotEmpty(t, r.Reporter)
		assert.NotEmpty(t, r.Partner)
		assert.Greater(t, r.TariffRate, 0.0)
	}
}
