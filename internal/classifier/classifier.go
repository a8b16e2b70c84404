// Package classifier is the sole component that knows the messaging
// platform's error dialect (spec.md §7, §9): it translates a raw
// sessionclient.SendError into an ErrorKind plus the documented side
// effects on Group, Session, and SessionRateState.
package classifier

import (
	"fmt"
	"time"

	"github.com/jaxongr/reklamabot/internal/domain/group"
	"github.com/jaxongr/reklamabot/internal/domain/post"
	"github.com/jaxongr/reklamabot/internal/domain/session"
	"github.com/jaxongr/reklamabot/internal/ratestate"
	"github.com/jaxongr/reklamabot/internal/sessionclient"
)

// Outcome is everything a driver needs to persist after one Send attempt:
// the history row to write, and pure mutators for the Group/Session rows it
// touches (nil if that entity is untouched).
type Outcome struct {
	HistoryStatus post.HistoryStatus
	Reason        string
	// SleepSeconds is >0 only for an inline FloodWait(n<=60): the driver
	// must sleep this long before moving to the next group.
	SleepSeconds int
	// GroupUpdate, SessionUpdate mutate a copy of the row; nil means no
	// change. Errors are classified once but may touch both entities (e.g.
	// none of spec.md's kinds touch both, but the shape allows it).
	GroupUpdate   func(group.Group) group.Group
	SessionUpdate func(session.Session) session.Session
}

// Classifier applies spec.md §4.4/§7's transitions, using rs to update the
// session's anti-throttle counters as a side effect of classification.
type Classifier struct {
	rs *ratestate.Registry
}

// New builds a Classifier bound to the engine's RateState registry.
func New(rs *ratestate.Registry) *Classifier {
	return &Classifier{rs: rs}
}

// ClassifySuccess applies the success transition (spec.md §4.4) — resetting
// consecutive-error count, incrementing messagesSent, and arming the
// per-session message-limit cooldown once the limit is hit — and returns
// the Sent outcome.
func (c *Classifier) ClassifySuccess(sessionID string, now time.Time) Outcome {
	cooldownArmed := c.rs.OnSuccess(sessionID, now)
	reason := ""
	if cooldownArmed {
		reason = "session message limit reached"
	}
	return Outcome{
		HistoryStatus: post.HistorySent,
		Reason:        reason,
		GroupUpdate:   func(g group.Group) group.Group { g.LastPostAt = now; return g },
	}
}

// Classify translates raw (the error Send returned) into an Outcome,
// applying the matching RateState transition for sessionID as a side effect.
func (c *Classifier) Classify(sessionID string, raw error, now time.Time) Outcome {
	se := sessionclient.AsSendError(raw)

	switch se.Kind {
	case sessionclient.KindFloodWait:
		out := c.rs.OnFlood(sessionID, se.WaitSeconds, now)
		return Outcome{
			HistoryStatus: post.HistoryFailed,
			Reason:        fmt.Sprintf("FLOOD_WAIT %d", se.WaitSeconds),
			SleepSeconds:  out.SleepSeconds,
		}

	case sessionclient.KindSlowmodeWait:
		reason := fmt.Sprintf("slowmode %d", se.WaitSeconds)
		return Outcome{
			HistoryStatus: post.HistorySkipped,
			Reason:        reason,
			GroupUpdate: func(g group.Group) group.Group {
				g.HasRestrictions = true
				g.SkipReason = reason
				g.RestrictionUntil = now.Add(time.Duration(se.WaitSeconds) * time.Second)
				return g
			},
		}

	case sessionclient.KindWriteForbidden:
		return Outcome{
			HistoryStatus: post.HistorySkipped,
			Reason:        "write forbidden",
			GroupUpdate: func(g group.Group) group.Group {
				g.HasRestrictions = true
				g.IsSkipped = true
				g.SkipReason = "write forbidden"
				return g
			},
		}

	case sessionclient.KindChatRestricted, sessionclient.KindPremiumReq:
		return Outcome{
			HistoryStatus: post.HistorySkipped,
			Reason:        "chat restricted",
			GroupUpdate: func(g group.Group) group.Group {
				g.HasRestrictions = true
				g.IsSkipped = true
				g.SkipReason = "chat restricted"
				return g
			},
		}

	case sessionclient.KindAuthRevoked:
		c.rs.OnAuthRevoked(sessionID, now)
		return Outcome{
			HistoryStatus: post.HistoryFailed,
			Reason:        "session dead",
			SessionUpdate: func(s session.Session) session.Session {
				s.Status = session.StatusBanned
				s.IsFrozen = true
				s.FrozenAt = now
				s.FreezeCount++
				return s
			},
		}

	default: // KindTransient and anything unclassified
		c.rs.OnTransientError(sessionID, now)
		return Outcome{
			HistoryStatus: post.HistoryFailed,
			Reason:        se.Error(),
		}
	}
}
