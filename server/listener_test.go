package server

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/englishauction/auctionapi"
)

// roundTrip sends one request the way enclave clients do: write, half-close, read
// the single JSON response.
func roundTrip(t *testing.T, addr string, req any) map[string]any {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	assert.NoError(t, err)
	defer conn.Close()

	assert.NoError(t, json.NewEncoder(conn).Encode(req))
	assert.NoError(t, conn.(*net.TCPConn).CloseWrite())

	var resp map[string]any
	assert.NoError(t, json.NewDecoder(conn).Decode(&resp))
	return resp
}

func startConnServer(t *testing.T, ts *testServer, workers int) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	listener, err := ListenTCP("127.0.0.1:0")
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewConnServer(ts.service, workers, time.Second).Serve(ctx, listener)
	}()
	return listener.Addr().String(), cancel, done
}

func TestConnServer_RequestResponse(t *testing.T) {
	ts := newTestServer(t)
	addr, cancel, done := startConnServer(t, ts, 4)

	pong := roundTrip(t, addr, auctionapi.Request{Type: auctionapi.TypePing})
	check.Equal(t, "pong", pong["type"])

	bid := roundTrip(t, addr, auctionapi.Request{Type: auctionapi.TypePlaceBid, Caller: "alice", Amount: "100"})
	check.Equal(t, "place_bid_response", bid["type"])

	rejected := roundTrip(t, addr, auctionapi.Request{Type: auctionapi.TypePlaceBid, Caller: "bob", Amount: "101"})
	check.Equal(t, "error", rejected["type"])
	body, ok := rejected["error"].(map[string]any)
	assert.True(t, ok)
	check.Equal(t, "too_low", body["code"])

	cancel()
	check.NoError(t, <-done)
}

func TestConnServer_MalformedRequest(t *testing.T) {
	ts := newTestServer(t)
	addr, cancel, done := startConnServer(t, ts, 1)
	defer func() {
		cancel()
		<-done
	}()

	conn, err := net.Dial("tcp", addr)
	assert.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not json"))
	assert.NoError(t, err)
	assert.NoError(t, conn.(*net.TCPConn).CloseWrite())

	var resp auctionapi.ErrorResponse
	assert.NoError(t, json.NewDecoder(conn).Decode(&resp))
	check.Equal(t, "error", resp.Type)
	check.Equal(t, auctionapi.KindRequest, resp.Error.Kind)
}

func TestConnServer_StopsOnCancel(t *testing.T) {
	ts := newTestServer(t)
	_, cancel, done := startConnServer(t, ts, 1)

	cancel()
	select {
	case err := <-done:
		check.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewConnServer_Defaults(t *testing.T) {
	s := NewConnServer(nil, 0, 0)
	check.Equal(t, 1, s.maxWorkers)
	check.Equal(t, DefaultReadTimeout, s.readTimeout)
}
