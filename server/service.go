// Package server exposes the engine over one-shot JSON connections on vsock or TCP
// and over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudx-io/englishauction/attest"
	"github.com/cloudx-io/englishauction/auctionapi"
	"github.com/cloudx-io/englishauction/core"
	"github.com/cloudx-io/englishauction/engine"
	"github.com/cloudx-io/englishauction/notify"
)

// Service maps wire requests onto engine operations. Times come from the clock,
// never from the request.
type Service struct {
	engine   *engine.Engine
	clock    core.Clock
	recorder *notify.Recorder
	attester func() (attest.EnclaveAttester, error)
	metrics  *Metrics
	log      zerolog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRecorder enables get_notifications.
func WithRecorder(r *notify.Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithAttester sets how attest obtains an attester. The default opens the Nitro
// Secure Module on each request.
func WithAttester(get func() (attest.EnclaveAttester, error)) ServiceOption {
	return func(s *Service) { s.attester = get }
}

// WithServiceMetrics sets the request metrics.
func WithServiceMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) { s.log = logger }
}

func NewService(e *engine.Engine, clock core.Clock, opts ...ServiceOption) *Service {
	if clock == nil {
		clock = core.SystemClock{}
	}
	s := &Service{
		engine:   e,
		clock:    clock,
		attester: attest.NitroAttester,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle decodes one raw request and returns the response to encode.
func (s *Service) Handle(ctx context.Context, raw []byte) any {
	var req auctionapi.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		s.metrics.request("unknown", "error")
		return auctionapi.NewErrorResponse("", fmt.Errorf("failed to decode request: %w", err))
	}
	return s.Dispatch(ctx, req)
}

// Dispatch runs a decoded request.
func (s *Service) Dispatch(ctx context.Context, req auctionapi.Request) any {
	start := time.Now()
	resp, err := s.dispatch(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		resp = auctionapi.NewErrorResponse(req.Type, err)
		s.log.Info().
			Str("type", req.Type).
			Str("caller", req.Caller).
			Err(err).
			Msg("request failed")
	} else {
		s.log.Debug().
			Str("type", req.Type).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	}
	s.metrics.request(req.Type, outcome)
	return resp
}

func (s *Service) caller(req auctionapi.Request) (core.Identity, error) {
	if req.Caller == "" {
		return "", fmt.Errorf("caller is required for %s", req.Type)
	}
	return core.Identity(req.Caller), nil
}

func (s *Service) dispatch(ctx context.Context, req auctionapi.Request) (any, error) {
	now := s.clock.Now()
	respType := auctionapi.ResponseType(req.Type)

	switch req.Type {
	case auctionapi.TypePing:
		return auctionapi.PongResponse{
			Type:      respType,
			Message:   "auction server is healthy",
			Timestamp: now.Unix(),
		}, nil

	case auctionapi.TypePlaceBid:
		caller, err := s.caller(req)
		if err != nil {
			return nil, err
		}
		amount, err := auctionapi.ParseAmount(req.Amount)
		if err != nil {
			return nil, err
		}
		placed, err := s.engine.PlaceBid(ctx, caller, amount, now)
		if err != nil {
			return nil, err
		}
		return auctionapi.BidResponse{
			Type:     respType,
			Bid:      *auctionapi.NewBidView(&placed.Bid),
			Deadline: placed.Deadline,
			Status:   placed.Status.String(),
		}, nil

	case auctionapi.TypeSelfWithdraw:
		caller, err := s.caller(req)
		if err != nil {
			return nil, err
		}
		payout, err := s.engine.SelfWithdraw(ctx, caller, now)
		if err != nil {
			return nil, err
		}
		return auctionapi.PayoutResponse{Type: respType, Payout: auctionapi.NewPayoutView(payout)}, nil

	case auctionapi.TypeFinalize, auctionapi.TypeEmergencyFinalize:
		caller, err := s.caller(req)
		if err != nil {
			return nil, err
		}
		finalize := s.engine.Finalize
		if req.Type == auctionapi.TypeEmergencyFinalize {
			finalize = s.engine.EmergencyFinalize
		}
		winner, err := finalize(ctx, caller, now)
		if err != nil {
			return nil, err
		}
		return auctionapi.WinnerResponse{Type: respType, Winner: auctionapi.NewBidView(winner)}, nil

	case auctionapi.TypeBatchRefund:
		caller, err := s.caller(req)
		if err != nil {
			return nil, err
		}
		payouts, err := s.engine.OwnerBatchRefund(ctx, caller, now)
		if err != nil {
			return nil, err
		}
		views := make([]auctionapi.PayoutView, 0, len(payouts))
		for _, p := range payouts {
			views = append(views, auctionapi.NewPayoutView(p))
		}
		return auctionapi.BatchRefundResponse{Type: respType, Payouts: views}, nil

	case auctionapi.TypeOwnerClaim, auctionapi.TypeEmergencyDrain:
		caller, err := s.caller(req)
		if err != nil {
			return nil, err
		}
		claim := s.engine.OwnerClaim
		if req.Type == auctionapi.TypeEmergencyDrain {
			claim = s.engine.EmergencyDrain
		}
		amount, err := claim(ctx, caller, now)
		if err != nil {
			return nil, err
		}
		return auctionapi.AmountResponse{Type: respType, Amount: auctionapi.FormatAmount(amount)}, nil

	case auctionapi.TypeGetWinner:
		winner, err := s.engine.Winner(ctx)
		if err != nil {
			return nil, err
		}
		return auctionapi.WinnerResponse{Type: respType, Winner: auctionapi.NewBidView(winner)}, nil

	case auctionapi.TypeGetBids:
		bids := s.engine.Bids(ctx)
		views := make([]auctionapi.BidView, 0, len(bids))
		for i := range bids {
			views = append(views, *auctionapi.NewBidView(&bids[i]))
		}
		return auctionapi.BidsResponse{Type: respType, Bids: views}, nil

	case auctionapi.TypeGetRemainingTime:
		remaining := s.engine.RemainingTime(ctx, now)
		return auctionapi.RemainingTimeResponse{
			Type:             respType,
			RemainingSeconds: int64(remaining / time.Second),
			Deadline:         s.engine.Deadline(ctx),
			Status:           s.engine.Status(ctx).String(),
		}, nil

	case auctionapi.TypeGetHighestBid:
		resp := auctionapi.HighestBidResponse{Type: respType}
		if bid, ok := s.engine.HighestBid(ctx); ok {
			resp.HighestBid = auctionapi.NewBidView(&bid)
		}
		return resp, nil

	case auctionapi.TypeGetStandings:
		standings := s.engine.Standings(ctx)
		views := make([]auctionapi.StandingView, 0, len(standings))
		for _, st := range standings {
			views = append(views, auctionapi.StandingView{
				Rank:    st.Rank,
				Bidder:  string(st.Bidder),
				BestBid: *auctionapi.NewBidView(&st.BestBid),
			})
		}
		return auctionapi.StandingsResponse{Type: respType, Standings: views}, nil

	case auctionapi.TypeGetSnapshot:
		snapshot := s.engine.Snapshot(ctx)
		return auctionapi.SnapshotResponse{
			Type:     respType,
			Snapshot: auctionapi.NewSnapshotView(snapshot),
		}, nil

	case auctionapi.TypeGetRefund:
		if req.Bidder == "" {
			return nil, fmt.Errorf("bidder is required for %s", req.Type)
		}
		balance := s.engine.RefundBalance(ctx, core.Identity(req.Bidder))
		return auctionapi.AmountResponse{Type: respType, Amount: auctionapi.FormatAmount(balance)}, nil

	case auctionapi.TypeGetNotifications:
		if s.recorder == nil {
			return nil, fmt.Errorf("notification history is not enabled")
		}
		notes := s.recorder.Since(req.After)
		views := make([]auctionapi.NotificationView, 0, len(notes))
		for _, n := range notes {
			views = append(views, auctionapi.NewNotificationView(n))
		}
		return auctionapi.NotificationsResponse{Type: respType, Notifications: views}, nil

	case auctionapi.TypeAttest:
		attester, err := s.attester()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize TEE attester: %w", err)
		}
		userData := attest.StateUserData(s.engine.Snapshot(ctx), req.Nonce, now)
		attestation, err := attest.GenerateStateAttestation(attester, userData, s.log)
		if err != nil {
			return nil, err
		}
		return auctionapi.AttestResponse{
			Type:        respType,
			Attestation: attestation.EncodeBase64(),
			UserData:    userData,
		}, nil

	default:
		return nil, fmt.Errorf("unknown request type: %s", req.Type)
	}
}
