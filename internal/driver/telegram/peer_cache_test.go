package telegram

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ex-otogi-trade/pkg/otogi"

	"github.com/gotd/td/tg"
)

func TestPeerCacheResolve(t *testing.T) {
	t.Parallel()

	cache := NewPeerCache()
	cache.RememberConversation(ChatRef{ID: "100", Type: otogi.ConversationTypeGroup}, &tg.InputPeerChat{ChatID: 100})
	cache.RememberConversation(
		ChatRef{ID: "300", Type: otogi.ConversationTypeGroup},
		&tg.InputPeerChannel{ChannelID: 300, AccessHash: 3},
	)
	cache.RememberEnvelope(gotdUpdateEnvelope{
		usersByID: map[int64]*tg.User{42: newTGUser(42, "alice", "", "", false)},
		chatsByID: map[int64]gotdChatInfo{
			500: {kind: otogi.ConversationTypeChannel, inputPeer: &tg.InputPeerChannel{ChannelID: 500, AccessHash: 5}},
		},
	})
	cache.RememberConversation(ChatRef{ID: "900", Type: otogi.ConversationTypeGroup}, nil)

	tests := []struct {
		name         string
		conversation otogi.Conversation
		wantErr      bool
		assert       func(t *testing.T, peer tg.InputPeerClass)
	}{
		{
			name:         "basic group",
			conversation: otogi.Conversation{ID: "100", Type: otogi.ConversationTypeGroup},
			assert: func(t *testing.T, peer tg.InputPeerClass) {
				t.Helper()
				if chat, ok := peer.(*tg.InputPeerChat); !ok || chat.ChatID != 100 {
					t.Fatalf("peer = %#v, want chat 100", peer)
				}
			},
		},
		{
			name:         "megagroup reachable as channel",
			conversation: otogi.Conversation{ID: "300", Type: otogi.ConversationTypeChannel},
			assert: func(t *testing.T, peer tg.InputPeerClass) {
				t.Helper()
				if channel, ok := peer.(*tg.InputPeerChannel); !ok || channel.AccessHash != 3 {
					t.Fatalf("peer = %#v, want channel 300", peer)
				}
			},
		},
		{
			name:         "channel reachable as group fallback",
			conversation: otogi.Conversation{ID: "500", Type: otogi.ConversationTypeGroup},
			assert: func(t *testing.T, peer tg.InputPeerClass) {
				t.Helper()
				if _, ok := peer.(*tg.InputPeerChannel); !ok {
					t.Fatalf("peer = %T, want channel", peer)
				}
			},
		},
		{
			name:         "private user from envelope",
			conversation: otogi.Conversation{ID: "42", Type: otogi.ConversationTypePrivate},
			assert: func(t *testing.T, peer tg.InputPeerClass) {
				t.Helper()
				if user, ok := peer.(*tg.InputPeerUser); !ok || user.UserID != 42 {
					t.Fatalf("peer = %#v, want user 42", peer)
				}
			},
		},
		{
			name:         "unknown private user",
			conversation: otogi.Conversation{ID: "43", Type: otogi.ConversationTypePrivate},
			wantErr:      true,
		},
		{
			name:         "nil peer is not stored",
			conversation: otogi.Conversation{ID: "900", Type: otogi.ConversationTypeGroup},
			wantErr:      true,
		},
		{
			name:         "missing type",
			conversation: otogi.Conversation{ID: "100"},
			wantErr:      true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			peer, err := cache.Resolve(testCase.conversation)
			if testCase.wantErr {
				if err == nil {
					t.Fatalf("expected error, got peer %#v", peer)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			testCase.assert(t, peer)
		})
	}
}

func TestPeerCacheResolveReturnsCopies(t *testing.T) {
	t.Parallel()

	cache := NewPeerCache()
	cache.RememberConversation(
		ChatRef{ID: "300", Type: otogi.ConversationTypeChannel},
		&tg.InputPeerChannel{ChannelID: 300, AccessHash: 3},
	)

	first, err := cache.Resolve(otogi.Conversation{ID: "300", Type: otogi.ConversationTypeChannel})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	first.(*tg.InputPeerChannel).AccessHash = 99

	second, err := cache.Resolve(otogi.Conversation{ID: "300", Type: otogi.ConversationTypeChannel})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if second.(*tg.InputPeerChannel).AccessHash != 3 {
		t.Fatal("cached peer mutated through resolved copy")
	}
}

func TestOpenPeerCacheMissingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "peers.json")
	cache, err := OpenPeerCache(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("len = %d, want 0", cache.Len())
	}
	// Nothing learned yet, so nothing is written.
	if err := cache.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("stat error = %v, want not exist", err)
	}
}

func TestOpenPeerCacheRejectsBadInput(t *testing.T) {
	t.Parallel()

	corrupt := filepath.Join(t.TempDir(), "peers.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	for name, path := range map[string]string{"empty path": "  ", "corrupt file": corrupt} {
		path := path
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if _, err := OpenPeerCache(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPeerCacheFlushRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "peers.json")
	cache, err := OpenPeerCache(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	cache.RememberEnvelope(gotdUpdateEnvelope{
		usersByID: map[int64]*tg.User{42: newTGUser(42, "alice", "", "", false)},
	})
	cache.RememberConversation(ChatRef{ID: "100", Type: otogi.ConversationTypeGroup}, &tg.InputPeerChat{ChatID: 100})
	cache.RememberConversation(
		ChatRef{ID: "300", Type: otogi.ConversationTypeGroup},
		&tg.InputPeerChannel{ChannelID: 300, AccessHash: 3},
	)
	if err := cache.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	reopened, err := OpenPeerCache(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if reopened.Len() != cache.Len() {
		t.Fatalf("reopened len = %d, want %d", reopened.Len(), cache.Len())
	}

	user, err := reopened.Resolve(otogi.Conversation{ID: "42", Type: otogi.ConversationTypePrivate})
	if err != nil {
		t.Fatalf("resolve user: %v", err)
	}
	want, err := cache.Resolve(otogi.Conversation{ID: "42", Type: otogi.ConversationTypePrivate})
	if err != nil {
		t.Fatalf("resolve original user: %v", err)
	}
	if *user.(*tg.InputPeerUser) != *want.(*tg.InputPeerUser) {
		t.Fatalf("user = %#v, want %#v", user, want)
	}

	chat, err := reopened.Resolve(otogi.Conversation{ID: "100", Type: otogi.ConversationTypeGroup})
	if err != nil {
		t.Fatalf("resolve chat: %v", err)
	}
	if chat.(*tg.InputPeerChat).ChatID != 100 {
		t.Fatalf("chat = %#v", chat)
	}

	channel, err := reopened.Resolve(otogi.Conversation{ID: "300", Type: otogi.ConversationTypeChannel})
	if err != nil {
		t.Fatalf("resolve channel: %v", err)
	}
	if got := channel.(*tg.InputPeerChannel); got.ChannelID != 300 || got.AccessHash != 3 {
		t.Fatalf("channel = %#v", got)
	}
}

func TestPeerCacheFlushSkipsCleanCache(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "peers.json")
	cache, err := OpenPeerCache(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	peer := &tg.InputPeerChat{ChatID: 100}
	cache.RememberConversation(ChatRef{ID: "100", Type: otogi.ConversationTypeGroup}, peer)
	if err := cache.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	// Relearning an identical peer does not mark the cache dirty.
	cache.RememberConversation(ChatRef{ID: "100", Type: otogi.ConversationTypeGroup}, peer)
	if err := cache.Flush(); err != nil {
		t.Fatalf("second flush failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("stat error = %v, want clean cache left unwritten", err)
	}
}

func TestPeerCacheFlushIfOlder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "peers.json")
	cache, err := OpenPeerCache(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	cache.RememberConversation(ChatRef{ID: "100", Type: otogi.ConversationTypeGroup}, &tg.InputPeerChat{ChatID: 100})

	if err := cache.FlushIfOlder(time.Hour); err != nil {
		t.Fatalf("flush if older failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("stat error = %v, want no write before interval", err)
	}

	if err := cache.FlushIfOlder(0); err != nil {
		t.Fatalf("flush if older failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat error = %v, want file written", err)
	}
}

func TestInMemoryPeerCacheNeverFlushes(t *testing.T) {
	t.Parallel()

	cache := NewPeerCache()
	cache.RememberConversation(ChatRef{ID: "100", Type: otogi.ConversationTypeGroup}, &tg.InputPeerChat{ChatID: 100})
	if err := cache.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	var nilCache *PeerCache
	if err := nilCache.FlushIfOlder(0); err != nil {
		t.Fatalf("nil cache flush failed: %v", err)
	}
}
