package memory

import "log/slog"

// prune runs the three passes in order. Caller holds m.mu.
func (m *Manager) prune() {
	m.forgetImages()
	m.trimToolGroups()
	m.evict()
}

// forgetImages strips payloads from the oldest image messages so that only
// the K newest keep theirs.
func (m *Manager) forgetImages() {
	k := m.opts.KeepImages
	if k < 0 {
		return
	}
	count := 0
	for _, msg := range m.history {
		if msg.hasImage() {
			count++
		}
	}
	excess := count - k
	for _, msg := range m.history {
		if excess <= 0 {
			break
		}
		if !msg.hasImage() {
			continue
		}
		msg.stripImage()
		m.tokens -= msg.cost
		msg.cost = msg.estimate(m.opts.Counter)
		m.tokens += msg.cost
		excess--
	}
}

// unit is a span of history evicted as a whole: a single message or a
// tool-call message with the tool results that follow it.
type unit struct {
	start, end int // [start, end)
	group      bool
}

func (m *Manager) units() []unit {
	var out []unit
	for i := 0; i < len(m.history); {
		u := unit{start: i, end: i + 1}
		if m.history[i].isToolCall() {
			u.group = true
			for u.end < len(m.history) && m.history[u.end].Role == RoleTool {
				u.end++
			}
		}
		out = append(out, u)
		i = u.end
	}
	return out
}

// trimToolGroups unpins all but the F newest tool-call groups.
func (m *Manager) trimToolGroups() {
	var groups []unit
	for _, u := range m.units() {
		if u.group {
			groups = append(groups, u)
		}
	}
	excess := len(groups) - m.opts.KeepToolGroups
	for i := 0; i < excess; i++ {
		for j := groups[i].start; j < groups[i].end; j++ {
			m.history[j].Pinned = false
		}
	}
}

func (m *Manager) pinned(u unit) bool {
	for i := u.start; i < u.end; i++ {
		if m.history[i].Pinned {
			return true
		}
	}
	return false
}

// evict drops the oldest unpinned unit until the history fits the budget.
// The unit holding the newest message is never evicted.
func (m *Manager) evict() {
	for m.tokens > m.opts.MaxTokens && len(m.history) > 1 {
		units := m.units()
		candidates := units[:len(units)-1]
		if len(candidates) == 0 {
			return
		}

		victim, ok := m.oldestUnpinned(candidates)
		if !ok {
			victim = candidates[0]
			slog.Debug("memory: budget exceeded by pinned messages, evicting oldest", "agent", m.opts.AgentID, "tokens", m.tokens)
		}

		for i := victim.start; i < victim.end; i++ {
			m.tokens -= m.history[i].cost
		}
		m.history = append(m.history[:victim.start], m.history[victim.end:]...)
	}
}

func (m *Manager) oldestUnpinned(units []unit) (unit, bool) {
	for _, u := range units {
		if !m.pinned(u) {
			return u, true
		}
	}
	return unit{}, false
}
