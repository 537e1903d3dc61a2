package telegram

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"ex-otogi-trade/pkg/otogi"

	"github.com/gotd/td/tg"
	"github.com/natefinch/atomic"
)

// errPeerUnknown means no update has shown the bot how to address a conversation.
var errPeerUnknown = errors.New("peer not seen yet")

// PeerCache maps neutral conversations to the Telegram input peers learned
// from inbound updates. Outbound dispatch needs the access hash carried by
// those peers, so members can only be messaged privately once the bot has
// seen them.
//
// A cache opened with a file path survives restarts: Flush writes it back.
type PeerCache struct {
	mu        sync.RWMutex
	peers     map[peerKey]tg.InputPeerClass
	path      string
	dirty     bool
	lastFlush time.Time
}

type peerKey struct {
	kind otogi.ConversationType
	id   string
}

// NewPeerCache creates an empty in-memory cache.
func NewPeerCache() *PeerCache {
	return &PeerCache{peers: make(map[peerKey]tg.InputPeerClass)}
}

// OpenPeerCache loads the cache persisted at path. A missing file yields an
// empty cache that is created on the first Flush.
func OpenPeerCache(path string) (*PeerCache, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("open peer cache: empty path")
	}

	cache := NewPeerCache()
	cache.path = path
	cache.lastFlush = time.Now()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cache, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open peer cache %s: %w", path, err)
	}

	var stored []storedPeer
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("open peer cache %s: %w", path, err)
	}
	for _, entry := range stored {
		if peer := entry.inputPeer(); peer != nil {
			cache.peers[peerKey{kind: entry.ConversationType, id: entry.ConversationID}] = peer
		}
	}

	return cache, nil
}

// RememberEnvelope ingests the users and chats attached to one update.
func (c *PeerCache) RememberEnvelope(envelope gotdUpdateEnvelope) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for userID, user := range envelope.usersByID {
		if user != nil {
			c.storeLocked(otogi.ConversationTypePrivate, strconv.FormatInt(userID, 10), user.AsInputPeer())
		}
	}
	for chatID, chat := range envelope.chatsByID {
		c.storeLocked(chat.kind, strconv.FormatInt(chatID, 10), chat.inputPeer)
	}
}

// RememberConversation stores one conversation-to-peer mapping.
func (c *PeerCache) RememberConversation(chat ChatRef, peer tg.InputPeerClass) {
	if c == nil || chat.ID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(chat.Type, chat.ID, peer)
}

// storeLocked records peer under its conversation. Supergroups are
// channels on the wire, so their peers are reachable as both kinds.
func (c *PeerCache) storeLocked(kind otogi.ConversationType, id string, peer tg.InputPeerClass) {
	if isNilInputPeer(peer) {
		return
	}

	keys := []peerKey{{kind: kind, id: id}}
	if _, isChannel := peer.(*tg.InputPeerChannel); isChannel && kind == otogi.ConversationTypeGroup {
		keys = append(keys, peerKey{kind: otogi.ConversationTypeChannel, id: id})
	}
	for _, key := range keys {
		if existing, ok := c.peers[key]; ok && samePeer(existing, peer) {
			continue
		}
		c.peers[key] = cloneInputPeer(peer)
		c.dirty = true
	}
}

// Resolve returns a copy of the input peer for conversation. Groups and
// channels fall back to each other.
func (c *PeerCache) Resolve(conversation otogi.Conversation) (tg.InputPeerClass, error) {
	if c == nil {
		return nil, fmt.Errorf("resolve peer: nil cache")
	}
	if conversation.ID == "" || conversation.Type == "" {
		return nil, fmt.Errorf("resolve peer: invalid conversation")
	}

	candidates := []otogi.ConversationType{conversation.Type}
	switch conversation.Type {
	case otogi.ConversationTypeGroup:
		candidates = append(candidates, otogi.ConversationTypeChannel)
	case otogi.ConversationTypeChannel:
		candidates = append(candidates, otogi.ConversationTypeGroup)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, kind := range candidates {
		if peer, ok := c.peers[peerKey{kind: kind, id: conversation.ID}]; ok {
			return cloneInputPeer(peer), nil
		}
	}

	return nil, fmt.Errorf("resolve peer %s/%s: %w", conversation.Type, conversation.ID, errPeerUnknown)
}

// Len returns the number of cached conversation mappings.
func (c *PeerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.peers)
}

// Flush persists the cache when it has a path and changed since the last
// flush. The file is replaced atomically.
func (c *PeerCache) Flush() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" || !c.dirty {
		return nil
	}

	stored := make([]storedPeer, 0, len(c.peers))
	for key, peer := range c.peers {
		if entry, ok := newStoredPeer(key, peer); ok {
			stored = append(stored, entry)
		}
	}
	slices.SortFunc(stored, func(left, right storedPeer) int {
		return strings.Compare(left.sortKey(), right.sortKey())
	})

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("flush peer cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("flush peer cache: %w", err)
	}
	if err := atomic.WriteFile(c.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("flush peer cache %s: %w", c.path, err)
	}
	c.dirty = false
	c.lastFlush = time.Now()

	return nil
}

// FlushIfOlder flushes when the last flush happened more than interval ago.
func (c *PeerCache) FlushIfOlder(interval time.Duration) error {
	if c == nil {
		return nil
	}

	c.mu.RLock()
	due := c.dirty && c.path != "" && time.Since(c.lastFlush) >= interval
	c.mu.RUnlock()
	if !due {
		return nil
	}

	return c.Flush()
}

// storedPeer is the on-disk form of one cache entry.
type storedPeer struct {
	ConversationType otogi.ConversationType `json:"conversation_type"`
	ConversationID   string                 `json:"conversation_id"`
	Peer             string                 `json:"peer"`
	ID               int64                  `json:"id"`
	AccessHash       int64                  `json:"access_hash,omitempty"`
}

func newStoredPeer(key peerKey, peer tg.InputPeerClass) (storedPeer, bool) {
	entry := storedPeer{ConversationType: key.kind, ConversationID: key.id}
	switch typed := peer.(type) {
	case *tg.InputPeerUser:
		entry.Peer, entry.ID, entry.AccessHash = "user", typed.UserID, typed.AccessHash
	case *tg.InputPeerChat:
		entry.Peer, entry.ID = "chat", typed.ChatID
	case *tg.InputPeerChannel:
		entry.Peer, entry.ID, entry.AccessHash = "channel", typed.ChannelID, typed.AccessHash
	default:
		return storedPeer{}, false
	}

	return entry, true
}

func (s storedPeer) inputPeer() tg.InputPeerClass {
	if s.ConversationID == "" || s.ConversationType == "" {
		return nil
	}
	switch s.Peer {
	case "user":
		return &tg.InputPeerUser{UserID: s.ID, AccessHash: s.AccessHash}
	case "chat":
		return &tg.InputPeerChat{ChatID: s.ID}
	case "channel":
		return &tg.InputPeerChannel{ChannelID: s.ID, AccessHash: s.AccessHash}
	default:
		return nil
	}
}

func (s storedPeer) sortKey() string {
	return string(s.ConversationType) + ":" + s.ConversationID
}

func isNilInputPeer(peer tg.InputPeerClass) bool {
	switch typed := peer.(type) {
	case nil:
		return true
	case *tg.InputPeerUser:
		return typed == nil
	case *tg.InputPeerChat:
		return typed == nil
	case *tg.InputPeerChannel:
		return typed == nil
	default:
		return false
	}
}

func samePeer(left, right tg.InputPeerClass) bool {
	switch typed := left.(type) {
	case *tg.InputPeerUser:
		other, ok := right.(*tg.InputPeerUser)
		return ok && *typed == *other
	case *tg.InputPeerChat:
		other, ok := right.(*tg.InputPeerChat)
		return ok && *typed == *other
	case *tg.InputPeerChannel:
		other, ok := right.(*tg.InputPeerChannel)
		return ok && *typed == *other
	default:
		return false
	}
}

func cloneInputPeer(peer tg.InputPeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.InputPeerUser:
		copied := *typed
		return &copied
	case *tg.InputPeerChat:
		copied := *typed
		return &copied
	case *tg.InputPeerChannel:
		copied := *typed
		return &copied
	default:
		return peer
	}
}
