package run

import (
	"context"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/keeper-registry/pkg/chain"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/simulate"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/telemetry"
)

func blockTime(number int64) time.Time {
	return time.Unix(1_700_000_000+12*number, 0).UTC()
}

func testResultServer() *ResultServer {
	collector := telemetry.NewPerformCollector("", false)
	collector.RecordPerform(3, common.HexToAddress("0x01"), types.PerformResult{
		UpkeepID: types.UpkeepIdentifierFromIndex(0),
		Success:  true,
		GasUsed:  50_000,
		Payment:  big.NewInt(1e17),
	})

	report := simulate.Report{
		Upkeeps: []simulate.UpkeepReport{
			{Name: "upkeep 0.0", ID: types.UpkeepIdentifierFromIndex(0), Expected: true, Performs: []uint64{3}, Balance: big.NewInt(5), LastPerformedAt: blockTime(3)},
			{Name: "upkeep 0.1", ID: types.UpkeepIdentifierFromIndex(1), Missed: []uint64{4}, Balance: big.NewInt(7)},
		},
		Blocks: []chain.Block{
			{Number: 4, Hash: common.HexToHash("0x04"), Timestamp: blockTime(4)},
			{Number: 3, Hash: common.HexToHash("0x03"), Timestamp: blockTime(3)},
		},
	}

	return NewResultServer(collector, report)
}

func TestResultServer(t *testing.T) {
	server := testResultServer()

	tests := []struct {
		Name        string
		Path        string
		Status      int
		ContentType string
	}{
		{Name: "charts", Path: "/", Status: http.StatusOK, ContentType: "text/html"},
		{Name: "metrics", Path: "/metrics", Status: http.StatusOK, ContentType: "text/plain"},
		{Name: "summary", Path: "/api/summary", Status: http.StatusOK, ContentType: "application/json"},
		{Name: "upkeeps", Path: "/api/upkeeps", Status: http.StatusOK, ContentType: "application/json"},
		{Name: "upkeep", Path: "/api/upkeeps/1", Status: http.StatusOK, ContentType: "application/json"},
		{Name: "blocks", Path: "/api/blocks", Status: http.StatusOK, ContentType: "application/json"},
		{Name: "unknown upkeep", Path: "/api/upkeeps/9", Status: http.StatusNotFound, ContentType: "application/json"},
		{Name: "unknown route", Path: "/api/keepers", Status: http.StatusNotFound},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, test.Path, nil))

			assert.Equal(t, test.Status, rec.Code)
			if test.ContentType != "" {
				assert.Contains(t, rec.Header().Get("Content-Type"), test.ContentType)
			}
		})
	}
}

func TestResultServer_Upkeep(t *testing.T) {
	server := testResultServer()

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/upkeeps/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var upkeep upkeepResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upkeep))

	assert.Equal(t, "upkeep 0.1", upkeep.Name)
	assert.Equal(t, "1", upkeep.ID)
	assert.False(t, upkeep.Expected)
	assert.Equal(t, []uint64{4}, upkeep.Missed)
	assert.Equal(t, int64(7), upkeep.Balance.Int64())
	assert.Nil(t, upkeep.LastPerformedAt)

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/upkeeps/0", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upkeep))
	require.NotNil(t, upkeep.LastPerformedAt)
	assert.True(t, blockTime(3).Equal(*upkeep.LastPerformedAt))
}

func TestResultServer_Blocks(t *testing.T) {
	server := testResultServer()

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/blocks", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var blocks []blockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &blocks))

	require.Len(t, blocks, 2)
	assert.Equal(t, uint64(4), blocks[0].Number)
	assert.Equal(t, common.HexToHash("0x04").Hex(), blocks[0].Hash)
	assert.True(t, blockTime(3).Equal(blocks[1].Timestamp))
}

func TestResultServer_Serve(t *testing.T) {
	server := testResultServer()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- server.Serve(ctx, listener)
	}()

	resp, err := http.Get("http://" + listener.Addr().String() + "/api/summary")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after the context was canceled")
	}
}
