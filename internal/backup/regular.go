package backup

import (
	"errors"
	"time"
)

// UpdateSettings applies changed settings to the regular timer:
// disabling stops it, enabling starts it, and an interval change restarts it
// keeping the time already elapsed since the last regular backup.
func (m *Manager) UpdateSettings(s Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.settings
	m.settings = s
	if m.closed {
		return
	}

	switch {
	case !s.Regularly:
		m.stopRegularLocked()
	case !prev.Regularly:
		m.startRegularLocked()
	case prev.RegularIntervalDays != s.RegularIntervalDays:
		m.stopRegularLocked()
		m.startRegularLocked()
	}
}

// Stop cancels the regular timer. The Manager cannot be restarted.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.stopRegularLocked()
}

// LastRegular returns the time of the last regular backup, or the time the
// regular timer first started.
func (m *Manager) LastRegular() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRegular
}

func (m *Manager) stopRegularLocked() {
	if m.timer == nil {
		return
	}
	m.timer.Stop()
	m.timer = nil
	m.logger.Info("regular backup stopped")
}

func (m *Manager) startRegularLocked() {
	if m.timer != nil {
		return
	}

	interval := m.settings.RegularInterval()
	now := m.now()
	if m.lastRegular.IsZero() {
		m.lastRegular = now
		m.logger.Info("regular backup started", "next_in", interval)
	} else {
		interval -= now.Sub(m.lastRegular)
		if interval < 0 {
			interval = 0
		}
		m.logger.Info("regular backup resumed", "next_in", interval)
	}

	m.generation++
	gen := m.generation
	m.timer = m.afterFunc(interval, func() { m.fireRegular(gen) })
}

func (m *Manager) fireRegular(gen uint64) {
	m.mu.Lock()
	if m.closed || m.timer == nil || gen != m.generation {
		m.mu.Unlock()
		return
	}
	keep := m.settings.RegularKeep
	m.timer = nil
	m.mu.Unlock()

	if _, err := m.Run(TypeRegular, keep); err != nil && !errors.Is(err, ErrBackupExists) {
		m.logger.Error("regular backup failed", "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRegular = m.now()
	if !m.closed && m.settings.Regularly {
		m.startRegularLocked()
	}
}
