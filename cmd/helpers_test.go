package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/noise-cli/internal/model"
)

func TestResolveDay(t *testing.T) {
	sgt := time.FixedZone("SGT", 8*3600)
	now := time.Date(2025, 5, 8, 2, 0, 0, 0, time.UTC)

	d, err := resolveDay("", now, sgt)
	require.NoError(t, err)
	assert.Equal(t, model.NewDay(2025, time.May, 7), d)

	// 17:00 UTC is already the 9th in SGT.
	d, err = resolveDay("", time.Date(2025, 5, 8, 17, 0, 0, 0, time.UTC), sgt)
	require.NoError(t, err)
	assert.Equal(t, model.NewDay(2025, time.May, 8), d)

	d, err = resolveDay("2025-05-01", now, sgt)
	require.NoError(t, err)
	assert.Equal(t, model.NewDay(2025, time.May, 1), d)

	_, err = resolveDay("May 1", now, sgt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --date")
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"15490", "16034"}, splitList(" 15490, ,16034,"))
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, []model.HealthRecord{{DeviceID: "15490", Status: model.StatusOffline}}))
	assert.Contains(t, buf.String(), `"status": "OFFLINE"`)
}
