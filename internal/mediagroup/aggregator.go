package mediagroup

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultDebounce is how long a media group must stay silent before it is
	// considered complete. Telegram delivers album parts as separate messages
	// with no "last part" marker, so completeness can only be inferred from
	// silence; every arrival re-arms the timer.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultRetention is how long a finalized buffer is kept around to absorb
	// trailing duplicate deliveries before its memory is reclaimed.
	DefaultRetention = 5 * time.Second
)

// Part is one message of a media group.
type Part struct {
	MessageID int    // provider-assigned sequence position within the chat
	Kind      string // media kind of this part (photo, video, document)
	FileID    string // file id of the part's media, highest resolution for photos
	Caption   string // album captions ride on an arbitrary part
}

// Submitter is the user context captured from the first part of a group.
type Submitter struct {
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string
}

// Album is a finalized media group: all parts in submission order plus the
// caption found on whichever part carried one. Kinds runs parallel to FileIDs.
type Album struct {
	Submitter Submitter
	FileIDs   []string
	Kinds     []string
	Caption   string
}

type group struct {
	submitter Submitter
	parts     []Part
	timer     *time.Timer
	finalized bool
}

// Aggregator collapses the separate messages of a media group into a single
// Album, emitted once per group after the debounce window closes. Safe for
// concurrent use; the emit callback runs on the timer goroutine.
type Aggregator struct {
	mu        sync.Mutex
	groups    map[string]*group
	debounce  time.Duration
	retention time.Duration
	emit      func(Album)
	logger    *zap.Logger
}

// New creates an Aggregator that calls emit for every finalized album.
func New(emit func(Album), logger *zap.Logger) *Aggregator {
	return NewWithTimings(emit, logger, DefaultDebounce, DefaultRetention)
}

// NewWithTimings creates an Aggregator with explicit debounce and retention
// windows. Used by tests to keep them fast.
func NewWithTimings(emit func(Album), logger *zap.Logger, debounce, retention time.Duration) *Aggregator {
	return &Aggregator{
		groups:    make(map[string]*group),
		debounce:  debounce,
		retention: retention,
		emit:      emit,
		logger:    logger,
	}
}

// Ingest buffers one part of a media group and re-arms the group's finalize
// timer. The submitter is captured from the first part; later parts only
// contribute their payload. Returns immediately; finalization happens later
// on the timer goroutine.
func (a *Aggregator) Ingest(groupID string, submitter Submitter, part Part) {
	a.mu.Lock()
	defer a.mu.Unlock()

	g, ok := a.groups[groupID]
	if !ok {
		g = &group{submitter: submitter}
		a.groups[groupID] = g
	}
	if g.finalized {
		// Trailing duplicate delivery after the window closed.
		a.logger.Debug("Ignoring part for finalized media group", zap.String("media_group_id", groupID))
		return
	}

	g.parts = append(g.parts, part)

	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(a.debounce, func() {
		a.finalize(groupID)
	})
}

// Cancel purges every unfinalized buffer owned by the given submitter. Called
// when the user aborts an appeal while album parts may still be in flight, so
// the abandoned album does not finalize into an appeal on timeout.
func (a *Aggregator) Cancel(userID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, g := range a.groups {
		if g.submitter.UserID != userID || g.finalized {
			continue
		}
		if g.timer != nil {
			g.timer.Stop()
		}
		delete(a.groups, id)
		a.logger.Info("Cancelled in-flight media group",
			zap.String("media_group_id", id),
			zap.Int64("user_id", userID),
		)
	}
}

// finalize runs when a group's debounce timer fires. The finalized flag makes
// it a no-op for a stale timer that was replaced but had already been queued
// by the runtime.
func (a *Aggregator) finalize(groupID string) {
	a.mu.Lock()
	g, ok := a.groups[groupID]
	if !ok || g.finalized {
		a.mu.Unlock()
		return
	}
	g.finalized = true

	// Arrival order is not guaranteed to match authoring order; message ids
	// within one chat are, so sort restores submission order.
	parts := make([]Part, len(g.parts))
	copy(parts, g.parts)
	sort.Slice(parts, func(i, j int) bool { return parts[i].MessageID < parts[j].MessageID })

	album := Album{Submitter: g.submitter}
	for _, p := range parts {
		album.FileIDs = append(album.FileIDs, p.FileID)
		album.Kinds = append(album.Kinds, p.Kind)
		if album.Caption == "" && p.Caption != "" {
			album.Caption = p.Caption
		}
	}

	time.AfterFunc(a.retention, func() {
		a.mu.Lock()
		delete(a.groups, groupID)
		a.mu.Unlock()
	})
	a.mu.Unlock()

	a.logger.Info("Media group finalized",
		zap.String("media_group_id", groupID),
		zap.Int("parts", len(album.FileIDs)),
	)
	a.emit(album)
}
