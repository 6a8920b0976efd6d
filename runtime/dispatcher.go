package runtime

import (
	"collab-realtime/codec"
	"collab-realtime/contract"
	"collab-realtime/domain"
	"collab-realtime/domain/event"
	"collab-realtime/observability"
	"context"
	"github.com/samber/lo"
	"log/slog"
	"time"
)

// Dispatcher routes one envelope to its recipients.
// Each call is independent: membership is fetched fresh, nothing is cached between events.
type Dispatcher struct {
	log               *slog.Logger
	registry          contract.IRegistry
	members           contract.GroupMembershipOracle
	notifier          contract.INotifier
	summarizer        summarizer
	metrics           *observability.Metrics
	monitoring        *observability.MonitoringManager
	membershipTimeout time.Duration
	// nodeID and directory are set when several nodes share one store.
	nodeID    string
	directory contract.PresenceDirectory
}

func NewDispatcher(
	log *slog.Logger,
	registry contract.IRegistry,
	store contract.Store,
	notifier contract.INotifier,
	metrics *observability.Metrics,
	monitoring *observability.MonitoringManager,
	membershipTimeout time.Duration,
) *Dispatcher {
	log = log.With("component", "dispatcher")
	return &Dispatcher{
		log:               log,
		registry:          registry,
		members:           store,
		notifier:          notifier,
		summarizer:        summarizer{log: log, users: store, messages: store},
		metrics:           metrics,
		monitoring:        monitoring,
		membershipTimeout: membershipTimeout,
	}
}

// WithPresence makes the dispatcher aware of the other nodes. A recipient that is
// not local gets its fallback from exactly one node: the one the directory names,
// or the node the event entered on when the directory names nobody.
func (d *Dispatcher) WithPresence(nodeID string, directory contract.PresenceDirectory) *Dispatcher {
	d.nodeID = nodeID
	d.directory = directory
	return d
}

// Dispatch never fails: push and fallback problems are logged, counted and
// reflected in the report, the caller keeps going.
// actor is the identity of the connection the envelope came from, zero for synthetic events.
func (d *Dispatcher) Dispatch(ctx context.Context, actor domain.UserID, env event.Envelope) domain.DispatchReport {
	start := time.Now()
	strategy := env.Type.Strategy()
	report := domain.DispatchReport{EventType: string(env.Type)}

	switch strategy {
	case event.StrategyGroupBroadcast:
		d.broadcast(ctx, actor, env, &report)
	case event.StrategyDirect:
		d.direct(ctx, env, &report)
	default:
		// Clients reconcile these through the REST pull path
		d.log.Debug("event acknowledged, nothing to push", "type", env.Type)
	}

	d.metrics.ObserveDispatch(string(env.Type), strategy.String(), time.Since(start))
	for _, r := range report.Recipients {
		d.metrics.Deliveries.WithLabelValues(r.Outcome.String()).Inc()
	}
	d.monitoring.AddDispatch(report)
	return report
}

func (d *Dispatcher) broadcast(ctx context.Context, actor domain.UserID, env event.Envelope, report *domain.DispatchReport) {
	groupID, _ := env.Group()
	report.GroupID = groupID
	log := d.log.With("type", env.Type, "group_id", groupID)

	sender := actor
	if sender.IsZero() {
		sender = env.Actor()
	}

	membershipCtx, cancel := context.WithTimeout(ctx, d.membershipTimeout)
	members, err := d.members.GetGroupMembers(membershipCtx, groupID)
	cancel()
	if err != nil {
		log.Error("membership lookup failed, event dropped", "error", err)
		d.metrics.MembershipErrors.Inc()
		return
	}

	frame, err := codec.Encode(env)
	if err != nil {
		log.Error("encode failed, event dropped", "error", err)
		return
	}

	category := env.Type.FallbackCategory()
	var pending, remote []domain.UserID
	for _, member := range lo.Uniq(members) {
		if env.Type.ExcludesSender() && !sender.IsZero() && member == sender {
			report.Recipients = append(report.Recipients, domain.Delivery{UserID: member, Outcome: domain.SkippedSender})
			continue
		}

		h, ok := d.registry.Lookup(member)
		if !ok {
			remote = append(remote, member)
			continue
		}

		if err := h.Push(ctx, frame); err != nil {
			log.Warn("push failed, falling back", "user_id", member, "conn_id", h.ID(), "error", err)
			d.metrics.PushFailures.Inc()
			if category == "" {
				report.Recipients = append(report.Recipients, domain.Delivery{UserID: member, Outcome: domain.OfflineNoFallback, Err: err})
				continue
			}
			pending = append(pending, member)
			report.Recipients = append(report.Recipients, domain.Delivery{UserID: member, Outcome: domain.OfflineFallback, Err: err})
			continue
		}
		report.Recipients = append(report.Recipients, domain.Delivery{UserID: member, Outcome: domain.LiveDelivered})
	}

	elsewhere := d.heldElsewhere(ctx, env, remote)
	for _, member := range remote {
		switch {
		case elsewhere[member]:
			report.Recipients = append(report.Recipients, domain.Delivery{UserID: member, Outcome: domain.HandledElsewhere})
		case category == "":
			report.Recipients = append(report.Recipients, domain.Delivery{UserID: member, Outcome: domain.OfflineNoFallback})
		default:
			pending = append(pending, member)
			report.Recipients = append(report.Recipients, domain.Delivery{UserID: member, Outcome: domain.OfflineFallback})
		}
	}

	if len(pending) == 0 {
		return
	}

	content := d.summarizer.describe(ctx, sender, env)
	for _, recipient := range pending {
		d.notifier.NotifyOffline(ctx, recipient, category, content.summary, content.entityID, content.entityType)
	}
	log.Debug("broadcast done",
		"members", len(members),
		"live", report.Count(domain.LiveDelivered),
		"fallback", len(pending),
	)
}

// heldElsewhere returns the non-local members another node answers for.
// A relayed envelope leaves every non-local member to the node it entered on.
// Without a directory, or when it cannot be read, this node answers for all of them.
func (d *Dispatcher) heldElsewhere(ctx context.Context, env event.Envelope, remote []domain.UserID) map[domain.UserID]bool {
	if len(remote) == 0 {
		return nil
	}
	if env.Origin != "" {
		return lo.SliceToMap(remote, func(u domain.UserID) (domain.UserID, bool) { return u, true })
	}
	if d.directory == nil {
		return nil
	}

	nodes, err := d.directory.Nodes(ctx, remote)
	if err != nil {
		d.log.Warn("presence directory unreachable, falling back locally", "type", env.Type, "error", err)
		return nil
	}
	held := make(map[domain.UserID]bool, len(nodes))
	for userID, node := range nodes {
		if node != "" && node != d.nodeID {
			held[userID] = true
		}
	}
	return held
}

// direct delivers to one user if they are live. There is no fallback on this path.
func (d *Dispatcher) direct(ctx context.Context, env event.Envelope, report *domain.DispatchReport) {
	target, _ := env.Target()
	log := d.log.With("type", env.Type, "user_id", target)

	h, ok := d.registry.Lookup(target)
	if !ok {
		log.Debug("target offline, direct event dropped")
		return
	}

	frame, err := codec.Encode(env)
	if err != nil {
		log.Error("encode failed, event dropped", "error", err)
		return
	}
	if err := h.Push(ctx, frame); err != nil {
		log.Warn("direct push failed", "conn_id", h.ID(), "error", err)
		d.metrics.PushFailures.Inc()
		return
	}
	report.Recipients = append(report.Recipients, domain.Delivery{UserID: target, Outcome: domain.LiveDelivered})
}
