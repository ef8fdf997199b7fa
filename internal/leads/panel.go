package leads

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ConnectionStatus reflects the last contact with the backend.
type ConnectionStatus string

const (
	Connected    ConnectionStatus = "connected"
	Disconnected ConnectionStatus = "disconnected"
	Checking     ConnectionStatus = "checking"
)

// DefaultRefreshInterval is the auto-refresh period.
const DefaultRefreshInterval = 30 * time.Second

// State is a copy of the panel for rendering.
type State struct {
	Records     []Record
	Filter      Status
	Connection  ConnectionStatus
	LastError   string
	Message     string
	AutoRefresh bool
	RefreshedAt time.Time
	Counts      map[Status]int
}

// PanelOptions configures a Panel.
type PanelOptions struct {
	Interval time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

// pendingUpdate is a local status change. Once the backend accepts it, it
// stays until a refresh issued after the acknowledgement has been applied.
type pendingUpdate struct {
	status Status
	seq    uint64
	acked  bool
	after  uint64
}

// Panel holds the admin lead list. Status changes are applied optimistically
// and reverted when the backend rejects them; refresh responses that arrive
// after a newer one has been applied are discarded.
type Panel struct {
	svc      Service
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	mu          sync.Mutex
	records     []Record
	filter      Status
	connection  ConnectionStatus
	lastErr     string
	message     string
	autoRefresh bool
	refreshedAt time.Time
	issued      uint64
	applied     uint64
	seq         uint64
	pending     map[string]pendingUpdate
}

// NewPanel constructs a panel with auto-refresh enabled.
func NewPanel(svc Service, opts PanelOptions) *Panel {
	if opts.Interval <= 0 {
		opts.Interval = DefaultRefreshInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Panel{
		svc:         svc,
		logger:      opts.Logger,
		interval:    opts.Interval,
		now:         opts.Now,
		connection:  Checking,
		autoRefresh: true,
		pending:     make(map[string]pendingUpdate),
	}
}

// Interval reports the auto-refresh period.
func (p *Panel) Interval() time.Duration { return p.interval }

// State returns a snapshot of the panel.
func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

// SetFilter changes the status filter and refreshes.
func (p *Panel) SetFilter(ctx context.Context, status Status) (State, error) {
	if status != "" {
		if _, ok := ParseStatus(string(status)); !ok {
			return p.State(), ErrInvalidStatus
		}
	}
	p.mu.Lock()
	p.filter = status
	p.mu.Unlock()
	return p.Refresh(ctx)
}

// Refresh reloads records from the backend.
func (p *Panel) Refresh(ctx context.Context) (State, error) {
	p.mu.Lock()
	p.issued++
	gen := p.issued
	filter := p.filter
	p.connection = Checking
	p.mu.Unlock()

	res, err := p.svc.List(ctx, filter)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen < p.applied {
		p.logger.Debug("dropping stale lead refresh", zap.Uint64("generation", gen), zap.Uint64("applied", p.applied))
		return p.stateLocked(), nil
	}
	p.applied = gen
	if err != nil {
		p.connection = Disconnected
		p.lastErr = err.Error()
		p.logger.Warn("lead refresh failed", zap.Error(err))
		return p.stateLocked(), err
	}

	p.connection = Connected
	p.lastErr = ""
	p.message = res.Message
	p.refreshedAt = p.now()
	p.records = append([]Record(nil), res.Records...)
	for id, upd := range p.pending {
		if upd.acked && gen > upd.after {
			delete(p.pending, id)
		}
	}
	for i := range p.records {
		if upd, ok := p.pending[p.records[i].ID]; ok {
			p.records[i].Status = upd.status
		}
	}
	return p.stateLocked(), nil
}

// UpdateStatus applies a status change locally, sends it, and either
// reconciles with a refresh or restores the previous status.
func (p *Panel) UpdateStatus(ctx context.Context, id string, status Status) (State, error) {
	if _, ok := ParseStatus(string(status)); !ok {
		return p.State(), ErrInvalidStatus
	}

	p.mu.Lock()
	idx := p.indexLocked(id)
	if idx < 0 {
		p.mu.Unlock()
		return p.State(), fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	previous := p.records[idx].Status
	p.records[idx].Status = status
	p.seq++
	seq := p.seq
	p.pending[id] = pendingUpdate{status: status, seq: seq}
	p.mu.Unlock()

	err := p.svc.UpdateStatus(ctx, id, status)

	p.mu.Lock()
	latest := p.pending[id].seq == seq
	if err != nil {
		if latest {
			delete(p.pending, id)
			if i := p.indexLocked(id); i >= 0 {
				p.records[i].Status = previous
			}
		}
		p.message = fmt.Sprintf("Could not update %s: %v", id, err)
		p.lastErr = err.Error()
		p.logger.Warn("lead status update failed", zap.String("search_id", id), zap.String("status", string(status)), zap.Error(err))
		state := p.stateLocked()
		p.mu.Unlock()
		return state, err
	}
	if latest {
		p.pending[id] = pendingUpdate{status: status, seq: seq, acked: true, after: p.issued}
	}
	p.message = ""
	p.mu.Unlock()

	state, refreshErr := p.Refresh(ctx)
	if refreshErr != nil {
		p.logger.Debug("reconcile refresh failed", zap.Error(refreshErr))
	}
	return state, nil
}

// TestConnection probes the backend and records the outcome.
func (p *Panel) TestConnection(ctx context.Context) (Probe, error) {
	p.mu.Lock()
	p.connection = Checking
	p.mu.Unlock()

	probe, err := p.svc.TestConnection(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.connection = Disconnected
		p.lastErr = err.Error()
		return probe, err
	}
	p.connection = Connected
	p.lastErr = ""
	return probe, nil
}

// SetAutoRefresh enables or disables the periodic refresh.
func (p *Panel) SetAutoRefresh(enabled bool) {
	p.mu.Lock()
	p.autoRefresh = enabled
	p.mu.Unlock()
}

// ToggleAutoRefresh flips the flag and returns the new value.
func (p *Panel) ToggleAutoRefresh() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoRefresh = !p.autoRefresh
	return p.autoRefresh
}

// Run refreshes once, then on every tick while auto-refresh is enabled,
// until ctx is cancelled.
func (p *Panel) Run(ctx context.Context) {
	_, _ = p.Refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			enabled := p.autoRefresh
			p.mu.Unlock()
			if enabled {
				_, _ = p.Refresh(ctx)
			}
		}
	}
}

func (p *Panel) indexLocked(id string) int {
	for i := range p.records {
		if p.records[i].ID == id {
			return i
		}
	}
	return -1
}

func (p *Panel) stateLocked() State {
	counts := make(map[Status]int, 4)
	for _, r := range p.records {
		counts[r.Status]++
	}
	return State{
		Records:     append([]Record(nil), p.records...),
		Filter:      p.filter,
		Connection:  p.connection,
		LastError:   p.lastErr,
		Message:     p.message,
		AutoRefresh: p.autoRefresh,
		RefreshedAt: p.refreshedAt,
		Counts:      counts,
	}
}
