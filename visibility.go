package clipfeed

import (
	"log/slog"
	"sync"
)

// VisibilityThreshold is the fraction of a feed card that must be inside
// the viewport before its video plays.
const VisibilityThreshold = 0.6

// Player is a playable media element bound to one post card.
type Player interface {
	Play()
	Pause()
}

// ThresholdPolicy drives one player from intersection-ratio updates: the
// card crossing into >=threshold visible resumes playback, crossing
// below pauses it. Each policy is independent; without a coordinator two
// sufficiently visible cards both play.
type ThresholdPolicy struct {
	mu          sync.Mutex
	player      Player
	threshold   float64
	visible     bool
	closed      bool
	coordinator *ExclusivePlayback
}

func NewThresholdPolicy(player Player, threshold float64) *ThresholdPolicy {
	return &ThresholdPolicy{
		player:    player,
		threshold: threshold,
	}
}

// HandleRatio feeds one intersection observation to the policy. Only
// threshold crossings act on the player; repeated observations on the
// same side are ignored.
func (p *ThresholdPolicy) HandleRatio(ratio float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	if ratio >= p.threshold && !p.visible {
		p.visible = true
		if p.coordinator != nil {
			p.coordinator.Acquire(p.player)
		}
		p.player.Play()
	} else if ratio < p.threshold && p.visible {
		p.visible = false
		p.player.Pause()
	}
}

// Close pauses playback and detaches the policy. Further observations
// are no-ops. Must be called on view unmount so stale observers do not
// leak across navigation.
func (p *ThresholdPolicy) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	if p.visible {
		p.visible = false
		p.player.Pause()
	}
	if p.coordinator != nil {
		p.coordinator.Release(p.player)
	}
}

// HoverPolicy is the grid/profile-view variant: pointer enter plays,
// pointer leave pauses. No thresholds involved.
type HoverPolicy struct {
	mu     sync.Mutex
	player Player
	closed bool
}

func NewHoverPolicy(player Player) *HoverPolicy {
	return &HoverPolicy{player: player}
}

func (p *HoverPolicy) PointerEnter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.player.Play()
}

func (p *HoverPolicy) PointerLeave() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.player.Pause()
}

func (p *HoverPolicy) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.player.Pause()
}

// ExclusivePlayback pauses the previously playing video when a new one
// starts. Opt-in; the original feed deliberately lets concurrent cards
// play.
type ExclusivePlayback struct {
	mu      sync.Mutex
	current Player
}

func NewExclusivePlayback() *ExclusivePlayback {
	return &ExclusivePlayback{}
}

func (e *ExclusivePlayback) Acquire(p Player) {
	e.mu.Lock()
	prev := e.current
	e.current = p
	e.mu.Unlock()

	if prev != nil && prev != p {
		prev.Pause()
	}
}

func (e *ExclusivePlayback) Release(p Player) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == p {
		e.current = nil
	}
}

// VisibilityBinder tracks the per-card policies for one rendered feed so
// every registration has a matching teardown. Bind on card mount, Unbind
// on unmount, Close when the feed itself goes away.
type VisibilityBinder struct {
	logger      *slog.Logger
	coordinator *ExclusivePlayback

	mu       sync.Mutex
	policies map[string]*ThresholdPolicy
}

type VisibilityBinderArgs struct {
	Logger      *slog.Logger
	Coordinator *ExclusivePlayback
}

func NewVisibilityBinder(args *VisibilityBinderArgs) *VisibilityBinder {
	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	return &VisibilityBinder{
		logger:      args.Logger,
		coordinator: args.Coordinator,
		policies:    make(map[string]*ThresholdPolicy),
	}
}

// Bind attaches a threshold policy to the post's player. Rebinding a
// post id tears down the previous policy first.
func (b *VisibilityBinder) Bind(postID string, player Player) *ThresholdPolicy {
	policy := NewThresholdPolicy(player, VisibilityThreshold)
	policy.coordinator = b.coordinator

	b.mu.Lock()
	prev := b.policies[postID]
	b.policies[postID] = policy
	b.mu.Unlock()

	if prev != nil {
		b.logger.Warn("rebinding visibility policy", "post", postID)
		prev.Close()
	}

	return policy
}

func (b *VisibilityBinder) Unbind(postID string) {
	b.mu.Lock()
	policy := b.policies[postID]
	delete(b.policies, postID)
	b.mu.Unlock()

	if policy != nil {
		policy.Close()
	}
}

func (b *VisibilityBinder) Close() {
	b.mu.Lock()
	policies := b.policies
	b.policies = make(map[string]*ThresholdPolicy)
	b.mu.Unlock()

	for _, policy := range policies {
		policy.Close()
	}
}
