package server

import (
	"context"
	"errors"
	"testing"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/englishauction/attest"
	"github.com/cloudx-io/englishauction/auctionapi"
	"github.com/cloudx-io/englishauction/core"
	"github.com/cloudx-io/englishauction/engine"
	"github.com/cloudx-io/englishauction/notify"
	"github.com/cloudx-io/englishauction/payment"
)

var t0 = time.Unix(1700000000, 0).UTC()

var errNoEnclave = errors.New("no enclave")

// fakeAttester returns Nitro-shaped documents echoing the requested user data.
type fakeAttester struct{}

func (fakeAttester) Attest(options enclave.AttestationOptions) ([]byte, error) {
	nested, err := cbor.Marshal(map[string]any{
		"module_id":   "test-enclave",
		"digest":      "SHA384",
		"timestamp":   uint64(1700000000000),
		"pcrs":        map[uint64][]byte{0: {0x01}},
		"certificate": []byte("cert"),
		"cabundle":    [][]byte{[]byte("ca")},
		"user_data":   options.UserData,
		"nonce":       options.Nonce,
	})
	if err != nil {
		return nil, err
	}
	return cbor.Marshal([]any{[]byte{0x01}, map[string]any{}, nested, []byte{0x02}})
}

type testServer struct {
	service  *Service
	engine   *engine.Engine
	clock    *core.ManualClock
	journal  *payment.Journal
	recorder *notify.Recorder
	registry *prometheus.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := core.NewManualClock(t0)
	journal := payment.NewJournal(clock, zerolog.Nop())
	recorder := notify.NewRecorder(100)
	registry := prometheus.NewRegistry()

	e, err := engine.New("owner", core.DefaultPolicy(), t0, journal,
		engine.WithAuctionID("auction-1"),
		engine.WithSink(recorder),
		engine.WithMetrics(engine.NewMetrics(registry)),
	)
	assert.NoError(t, err)

	service := NewService(e, clock,
		WithRecorder(recorder),
		WithAttester(func() (attest.EnclaveAttester, error) { return fakeAttester{}, nil }),
		WithServiceMetrics(NewMetrics(registry)),
	)
	return &testServer{
		service:  service,
		engine:   e,
		clock:    clock,
		journal:  journal,
		recorder: recorder,
		registry: registry,
	}
}

func (ts *testServer) do(t *testing.T, req auctionapi.Request) any {
	t.Helper()
	return ts.service.Dispatch(context.Background(), req)
}

func (ts *testServer) bid(t *testing.T, caller, amount string) {
	t.Helper()
	resp := ts.do(t, auctionapi.Request{Type: auctionapi.TypePlaceBid, Caller: caller, Amount: amount})
	_, ok := resp.(auctionapi.BidResponse)
	assert.True(t, ok)
}

func asError(t *testing.T, resp any) auctionapi.ErrorResponse {
	t.Helper()
	errResp, ok := resp.(auctionapi.ErrorResponse)
	assert.True(t, ok)
	return errResp
}
