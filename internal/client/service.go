// Package client implements the PCP client service: the single-threaded
// event loop that owns the mapping table, drives retransmission and
// renewal scheduling, validates server epochs, and runs recovery after a
// detected server restart (§4, §5).
package client

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/portmapper/pcpclient/internal/epoch"
	"github.com/portmapper/pcpclient/internal/mapping"
	"github.com/portmapper/pcpclient/internal/socket"
	"github.com/portmapper/pcpclient/internal/timer"
	"github.com/portmapper/pcpclient/internal/wire"
)

// Service runs the PCP client event loop. All mutation of the mapping
// table happens on the loop's own goroutine (Run); every other method
// communicates with it by posting to the input channel, the same
// single-writer discipline the wire codec and mapping table were designed
// around (§4.5, §5).
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	errCh  chan error

	log     *slog.Logger
	cfg     *Config
	conn    *socket.Conn
	clock   clockwork.Clock
	rand    *rand.Rand
	backoff *timer.Backoff

	table *mapping.Table

	input chan event
	fired chan timer.Fired

	notifications chan Notification

	// subscribers holds each mapping's dedicated alert channel, keyed by
	// table id. Only the event loop goroutine touches this map.
	subscribers map[int]chan Notification

	epochSnap *epoch.Snapshot
}

// NewService validates cfg, opens the listener goroutines and the event
// loop, and returns a running Service. Its lifetime is bound to ctx; cancel
// ctx or call Close to stop it.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client: invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Service{
		ctx:    ctx,
		cancel: cancel,
		errCh:  make(chan error, 4),

		log:     cfg.Logger,
		cfg:     &cfg,
		conn:    cfg.Conn,
		clock:   cfg.Clock,
		rand:    cfg.Rand,
		backoff: timer.NewBackoff(cfg.Rand),

		table: mapping.NewTable(),

		input: make(chan event, cfg.InputBuffer),
		fired: make(chan timer.Fired, cfg.InputBuffer),

		notifications: make(chan Notification, cfg.NotificationBuffer),
		subscribers:   make(map[int]chan Notification),
	}

	s.log.Info("client: service starting", "clientAddr", cfg.ClientAddr.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.runListener("unicast", s.conn.ReadUnicast); err != nil {
			s.log.Error("client: unicast listener stopped", "error", err)
			s.postListenerError(err)
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.runListener("multicast", s.conn.ReadMulticast); err != nil {
			s.log.Error("client: multicast listener stopped", "error", err)
			s.postListenerError(err)
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()

	return s, nil
}

// postListenerError forwards a fatal listener error into the event loop,
// falling back to a direct errCh send if the loop has already stopped.
func (s *Service) postListenerError(err error) {
	select {
	case s.input <- listenerErrorEvent{err: err}:
	case <-s.ctx.Done():
		select {
		case s.errCh <- err:
		default:
		}
	}
}

// Err returns a channel that receives the service's terminal error, if any.
func (s *Service) Err() <-chan error {
	return s.errCh
}

// Notifications returns the channel mapping lifecycle events are reported
// on (§6.3). Callers should keep draining it for as long as the service
// runs.
func (s *Service) Notifications() <-chan Notification {
	return s.notifications
}

// Close stops the event loop and both listeners and closes the transport.
func (s *Service) Close() error {
	select {
	case s.input <- shutdownEvent{}:
	default:
	}
	s.cancel()
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

// notify delivers n on the service-wide feed and, for a per-mapping event
// (MappingID >= 0), on that mapping's dedicated alert channel too.
func (s *Service) notify(n Notification) {
	select {
	case s.notifications <- n:
	default:
		s.log.Warn("client: notification channel full; dropping", "mappingID", n.MappingID())
	}

	id := n.MappingID()
	if id < 0 {
		for _, ch := range s.subscribers {
			select {
			case ch <- n:
			default:
			}
		}
		return
	}
	if ch, ok := s.subscribers[id]; ok {
		select {
		case ch <- n:
		default:
		}
	}
}

// run is the event loop body (§4.5): the only goroutine that ever touches
// s.table.
func (s *Service) run() {
	defer s.cancel()
	defer func() {
		for id, ch := range s.subscribers {
			close(ch)
			delete(s.subscribers, id)
		}
	}()
	for {
		select {
		case <-s.ctx.Done():
			return
		case f := <-s.fired:
			s.handleFired(f)
		case ev := <-s.input:
			if s.handleEvent(ev) {
				return
			}
		}
	}
}

// handleEvent processes one event and reports whether the loop should
// stop.
func (s *Service) handleEvent(ev event) (stop bool) {
	switch e := ev.(type) {
	case newMappingEvent:
		s.handleNewMapping(e)
	case revokeEvent:
		s.handleRevoke(e.id)
	case renewEvent:
		s.handleRenew(e.id, e.lifetime)
	case dropEvent:
		s.handleDrop(e.id)
	case serverResponseEvent:
		s.handleServerResponse(e)
	case listenerErrorEvent:
		s.log.Error("client: stopping on listener error", "error", e.err)
		select {
		case s.errCh <- e.err:
		default:
		}
		return true
	case shutdownEvent:
		return true
	}
	return false
}

// RequestInbound asks the service to start requesting a MAP mapping. It
// returns the table slot the loop installed the record at and a channel
// that receives only this mapping's notifications (the handle package's
// view of it).
func (s *Service) RequestInbound(spec InboundSpec, kind mapping.Kind) (int, <-chan Notification, error) {
	return s.requestMapping(newMappingEvent{kind: kind, mapSpec: &spec})
}

// RequestOutbound asks the service to start requesting a PEER mapping.
func (s *Service) RequestOutbound(spec OutboundSpec, kind mapping.Kind) (int, <-chan Notification, error) {
	return s.requestMapping(newMappingEvent{kind: kind, peerSpec: &spec})
}

func (s *Service) requestMapping(ev newMappingEvent) (int, <-chan Notification, error) {
	ev.reply = make(chan int, 1)
	ev.alerts = make(chan Notification, 8)
	select {
	case s.input <- ev:
	case <-s.ctx.Done():
		return 0, nil, s.ctx.Err()
	}
	select {
	case id := <-ev.reply:
		return id, ev.alerts, nil
	case <-s.ctx.Done():
		return 0, nil, s.ctx.Err()
	}
}

// Revoke asks the service to release a mapping (§6.2).
func (s *Service) Revoke(id int) {
	select {
	case s.input <- revokeEvent{id: id}:
	case <-s.ctx.Done():
	}
}

// Renew asks the service to request a new lifetime for a running mapping,
// outside its normal renewal schedule (§6.2).
func (s *Service) Renew(id int, lifetime time.Duration) {
	select {
	case s.input <- renewEvent{id: id, lifetime: uint32(lifetime.Seconds())}:
	case <-s.ctx.Done():
	}
}

// Drop frees a mapping's table slot for reuse, revoking it first if it was
// still active. Called once a handle is done with the mapping.
func (s *Service) Drop(id int) {
	select {
	case s.input <- dropEvent{id: id}:
	case <-s.ctx.Done():
	}
}

// --- event handlers, all run on the loop goroutine ---

func (s *Service) handleNewMapping(e newMappingEvent) {
	id := s.table.Allocate()

	var req *wire.Request
	if e.mapSpec != nil {
		req = s.buildMapRequest(id, e.mapSpec)
	} else {
		req = s.buildPeerRequest(id, e.peerSpec)
	}

	rec := &mapping.Record{
		State:   mapping.State{Kind: mapping.Starting},
		Request: req,
		Kind:    e.kind,
	}
	s.table.Set(id, rec)
	metricMappingsActive.Inc()
	if e.alerts != nil {
		s.subscribers[id] = e.alerts
	}

	if e.reply != nil {
		e.reply <- id
	}
	s.sendAndArm(id, rec)
}

func (s *Service) handleRevoke(id int) {
	rec := s.table.Get(id)
	if rec == nil || rec.State.IsTerminal() {
		return
	}
	rec.CancelDelay()
	rec.SetLifetime(0)
	if b, err := rec.Bytes(); err == nil {
		if err := s.conn.SendToServer(b); err != nil {
			s.log.Warn("client: revoke send failed", "id", id, "error", err)
		} else {
			emitRequestSent(rec.Request.Opcode.String())
		}
	} else {
		s.log.Warn("client: failed to encode revoke request", "id", id, "error", err)
	}
	rec.State = mapping.State{Kind: mapping.Revoked}
	metricMappingsActive.Dec()
	emitMappingTransition("Revoked", "user_revoke")
	s.notify(Revoked{ID: id})
}

func (s *Service) handleRenew(id int, lifetime uint32) {
	rec := s.table.Get(id)
	if rec == nil || rec.State.Kind != mapping.Running {
		s.log.Warn("client: renew requested for a mapping that is not running", "id", id)
		return
	}
	rec.CancelDelay()
	rec.SetLifetime(lifetime)
	rec.RetransmitWait = 0
	rec.PendingRenewal = false
	rec.State = mapping.State{Kind: mapping.Starting}
	emitMappingTransition("Starting", "explicit_renew")
	s.sendAndArm(id, rec)
}

func (s *Service) handleDrop(id int) {
	rec := s.table.Get(id)
	if rec == nil {
		return
	}
	if !rec.State.IsTerminal() {
		s.handleRevoke(id)
	}
	rec.CancelDelay()
	rec.State = mapping.State{Kind: mapping.Dropped}
	delete(s.subscribers, id)
}

func (s *Service) handleFired(f timer.Fired) {
	rec := s.table.Get(f.ID)
	if rec == nil || rec.State.IsTerminal() {
		return
	}
	switch rec.State.Kind {
	case mapping.Starting:
		rec.State.Attempt++
		s.sendAndArm(f.ID, rec)
	case mapping.Updating:
		s.enterUpdatePath(f.ID, rec, rec.State.Attempt+1)
	case mapping.Running:
		if rec.PendingRenewal {
			if !rec.Kind.KeepAlive {
				rec.Kind.Repeat--
			}
			rec.PendingRenewal = false
			s.enterUpdatePath(f.ID, rec, 0)
		} else {
			s.expireMapping(f.ID, rec)
		}
	}
}

func (s *Service) handleServerResponse(e serverResponseEvent) {
	resp := e.resp

	if resp.Opcode == wire.OpAnnounce {
		if resp.Result == wire.ResultSuccess {
			s.log.Info("client: received Announce; server likely restarted")
			s.triggerRecovery("announce")
		} else {
			s.log.Debug("client: received Announce error response; ignoring", "result", resp.Result)
		}
		return
	}

	valid, next := epoch.Validate(s.epochSnap, resp.Epoch, e.receivedAt)
	if !valid {
		metricEpochInvalid.Inc()
		s.log.Warn("client: epoch validation failed; triggering recovery",
			"epoch", resp.Epoch)
		s.triggerRecovery("epoch_invalid")
		return
	}
	s.epochSnap = &next

	id, ok := s.table.FindMatch(resp)
	if !ok {
		metricResponsesUnmatched.Inc()
		return
	}
	rec := s.table.Get(id)
	if rec == nil || rec.State.IsTerminal() {
		return
	}

	emitResponseReceived(resp.Opcode.String(), strconv.Itoa(int(resp.Result)))
	rec.CancelDelay()

	if resp.Result != wire.ResultSuccess {
		s.failMapping(id, rec, resp.Result)
		return
	}

	wire.ApplyAssignment(rec.Request, resp)
	// The granted lifetime is capped at 24h as a sanity bound.
	const maxGrantedLifetime = 24 * 60 * 60
	granted := resp.Lifetime
	if granted > maxGrantedLifetime {
		granted = maxGrantedLifetime
	}
	lifetime := time.Duration(granted) * time.Second
	rec.Lifetime = lifetime
	rec.RemainingLifetime = lifetime
	// The request now carries the granted lifetime. SetLifetime also
	// invalidates the cached bytes, which ApplyAssignment's direct payload
	// mutation bypasses, so a retransmission carries the server's assignment.
	rec.SetLifetime(granted)

	rec.State = mapping.State{Kind: mapping.Running}
	emitMappingTransition("Running", "accepted")

	extAddr, extPort := externalEndpoint(rec.Request)
	s.notify(Accepted{
		ID:           id,
		ExternalPort: extPort,
		ExternalAddr: extAddr,
		Lifetime:     lifetime,
		Epoch:        resp.Epoch,
	})

	s.armRenewalOrExpiry(id, rec)
}

// enterUpdatePath drives the renewal "update path" (§4.5): it consumes the
// wait that just fired against the mapping's remaining lifetime, computes
// the next renewal wait at the given attempt count, and either resends and
// re-arms at that wait (transitioning to Updating) or, once the renewal
// formula yields no further wait, expires the mapping. Unlike Starting's
// retransmission backoff, a resend here never retries on its own timeout
// failing to produce a response — the next attempt is driven entirely by
// the renewal schedule.
func (s *Service) enterUpdatePath(id int, rec *mapping.Record, attempts int) {
	rec.RemainingLifetime = saturatingSubDuration(rec.RemainingLifetime, rec.RenewWait)

	wait, ok := s.backoff.RenewalWait(rec.RemainingLifetime, attempts)
	if !ok {
		s.expireMapping(id, rec)
		return
	}
	if err := s.sendRequest(id, rec); err != nil {
		return
	}
	rec.RenewWait = wait
	rec.State = mapping.State{Kind: mapping.Updating, Attempt: attempts, Lifetime: uint32(rec.Lifetime.Seconds())}
	emitMappingTransition("Updating", "renew")
	rec.Delay = timer.Arm(s.ctx, s.clock, id, wait, s.fired)
}

// saturatingSubDuration returns a-b, floored at zero.
func saturatingSubDuration(a, b time.Duration) time.Duration {
	if b >= a {
		return 0
	}
	return a - b
}

func (s *Service) expireMapping(id int, rec *mapping.Record) {
	rec.State = mapping.State{Kind: mapping.Expired}
	metricMappingsActive.Dec()
	emitMappingTransition("Expired", "natural")
	s.notify(Expired{ID: id})
}

func (s *Service) failMapping(id int, rec *mapping.Record, code wire.ResultCode) {
	rec.State = mapping.State{Kind: mapping.Error, Code: code}
	metricMappingsActive.Dec()
	emitMappingTransition("Error", strconv.Itoa(int(code)))
	s.notify(Failed{ID: id, Code: code, Recoverable: isRecoverableResult(code)})
}

func isRecoverableResult(code wire.ResultCode) bool {
	switch code {
	case wire.ResultNetworkFailure, wire.ResultNoResources:
		return true
	default:
		return false
	}
}

// armRenewalOrExpiry schedules the next timer for a freshly Running record:
// a renewal-due delay if the mapping's Kind wants one and the computed
// jittered wait clears the minimum-renewal floor, otherwise a natural
// expiry delay at the full granted lifetime.
func (s *Service) armRenewalOrExpiry(id int, rec *mapping.Record) {
	wantsRenewal := rec.Kind.KeepAlive || rec.Kind.Repeat > 0
	if wantsRenewal {
		if wait, ok := s.backoff.RenewalWait(rec.RemainingLifetime, 0); ok {
			rec.RenewWait = wait
			rec.PendingRenewal = true
			emitRenewalWait(wait)
			rec.Delay = timer.Arm(s.ctx, s.clock, id, wait, s.fired)
			return
		}
	}
	rec.PendingRenewal = false
	rec.Delay = timer.Arm(s.ctx, s.clock, id, rec.Lifetime, s.fired)
}

// sendRequest serializes and sends rec's current request. It fails the
// mapping if the request can't be encoded.
func (s *Service) sendRequest(id int, rec *mapping.Record) error {
	b, err := rec.Bytes()
	if err != nil {
		s.log.Error("client: failed to encode request", "id", id, "error", err)
		s.failMapping(id, rec, wire.ResultMalformedRequest)
		return err
	}
	if err := s.conn.SendToServer(b); err != nil {
		s.log.Warn("client: send failed", "id", id, "error", err)
	} else {
		emitRequestSent(rec.Request.Opcode.String())
	}
	return nil
}

// sendAndArm sends rec's current request and arms the next retransmission
// delay per the RFC 6887 §8.1.1 backoff schedule.
func (s *Service) sendAndArm(id int, rec *mapping.Record) {
	if err := s.sendRequest(id, rec); err != nil {
		return
	}

	wait := s.backoff.IRT()
	if rec.RetransmitWait > 0 {
		wait = s.backoff.RT(rec.RetransmitWait)
	}
	rec.RetransmitWait = wait
	rec.Delay = timer.Arm(s.ctx, s.clock, id, wait, s.fired)
}

// triggerRecovery restarts the handshake for every active mapping after a
// detected server restart (epoch discontinuity or a successful unsolicited
// Announce, §4.5): every non-terminal record, regardless of its current
// state, is reset to Starting(0) and resent.
func (s *Service) triggerRecovery(reason string) {
	metricRecoveries.Inc()
	count := 0
	s.table.IterActive(func(id int, rec *mapping.Record) {
		rec.CancelDelay()
		rec.RetransmitWait = 0
		rec.PendingRenewal = false
		rec.State = mapping.State{Kind: mapping.Starting}
		count++
	})
	s.log.Info("client: recovery started", "reason", reason, "mappings", count)
	s.notify(Recovering{ActiveCount: count})
	s.table.IterActive(func(id int, rec *mapping.Record) {
		s.sendAndArm(id, rec)
	})
}

func externalEndpoint(req *wire.Request) (netip.Addr, uint16) {
	if req.Map != nil {
		return req.Map.ExternalAddr, req.Map.ExternalPort
	}
	if req.Peer != nil {
		return req.Peer.ExternalAddr, req.Peer.ExternalPort
	}
	return netip.Addr{}, 0
}

func (s *Service) buildMapRequest(id int, spec *InboundSpec) *wire.Request {
	return &wire.Request{
		Opcode:     wire.OpMap,
		Lifetime:   uint32(spec.Lifetime.Seconds()),
		ClientAddr: s.cfg.ClientAddr,
		Map: &wire.MapPayload{
			Nonce:        generateNonce(s.rand, id),
			Protocol:     spec.Protocol,
			InternalPort: spec.InternalPort,
			ExternalPort: spec.SuggestedPort,
			ExternalAddr: spec.SuggestedAddr,
		},
		Options: buildMapOptions(spec),
	}
}

func buildMapOptions(spec *InboundSpec) []wire.Option {
	var opts []wire.Option
	for _, f := range spec.Filters {
		opts = append(opts, f)
	}
	if spec.PreferFailure {
		opts = append(opts, wire.PreferFailureOption{})
	}
	if spec.ThirdParty != nil {
		opts = append(opts, wire.ThirdPartyOption{InternalAddr: *spec.ThirdParty})
	}
	return opts
}

func (s *Service) buildPeerRequest(id int, spec *OutboundSpec) *wire.Request {
	var opts []wire.Option
	if spec.ThirdParty != nil {
		opts = append(opts, wire.ThirdPartyOption{InternalAddr: *spec.ThirdParty})
	}
	return &wire.Request{
		Opcode:     wire.OpPeer,
		Lifetime:   uint32(spec.Lifetime.Seconds()),
		ClientAddr: s.cfg.ClientAddr,
		Peer: &wire.PeerPayload{
			Nonce:        generateNonce(s.rand, id),
			Protocol:     spec.Protocol,
			InternalPort: spec.InternalPort,
			ExternalPort: spec.SuggestedPort,
			ExternalAddr: spec.SuggestedAddr,
			RemotePort:   spec.RemotePort,
			RemoteAddr:   spec.RemoteAddr,
		},
		Options: opts,
	}
}
