package telegram

import (
	"context"
	"testing"
	"time"

	"ex-otogi-trade/pkg/otogi"

	"github.com/gotd/td/tg"
)

func TestDefaultGotdUpdateMapperMap(t *testing.T) {
	t.Parallel()

	occurredAt := time.Unix(1_700_000_000, 0).UTC()
	alice := newTGUser(42, "alice", "Alice", "Smith", false)

	tests := []struct {
		name         string
		envelope     gotdUpdateEnvelope
		wantAccepted bool
		assert       func(t *testing.T, got Update)
	}{
		{
			name: "group message",
			envelope: gotdUpdateEnvelope{
				update: &tg.UpdateNewMessage{
					Message: func() tg.MessageClass {
						message := &tg.Message{
							ID:      777,
							PeerID:  &tg.PeerChat{ChatID: 100},
							FromID:  &tg.PeerUser{UserID: 42},
							Date:    1_700_000_000,
							Message: "/addwant 1 2",
						}
						header := &tg.MessageReplyHeader{}
						header.SetReplyToMsgID(700)
						message.SetReplyTo(header)
						return message
					}(),
				},
				occurredAt:  occurredAt,
				usersByID:   map[int64]*tg.User{42: alice},
				chatsByID:   map[int64]gotdChatInfo{100: {title: "want-list", kind: otogi.ConversationTypeGroup}},
				updateClass: "updateNewMessage",
			},
			wantAccepted: true,
			assert: func(t *testing.T, got Update) {
				t.Helper()
				if got.ID != "tg:message:100:777" {
					t.Fatalf("id = %q, want tg:message:100:777", got.ID)
				}
				if got.Chat != (ChatRef{ID: "100", Title: "want-list", Type: otogi.ConversationTypeGroup}) {
					t.Fatalf("chat = %+v", got.Chat)
				}
				want := ActorRef{ID: "42", Username: "alice", DisplayName: "Alice Smith"}
				if got.Actor != want {
					t.Fatalf("actor = %+v, want %+v", got.Actor, want)
				}
				if got.Message.Text != "/addwant 1 2" || got.Message.ReplyToID != "700" {
					t.Fatalf("message = %+v", got.Message)
				}
				if got.Metadata["gotd_update"] != "updateNewMessage" {
					t.Fatalf("metadata = %v", got.Metadata)
				}
			},
		},
		{
			name: "megagroup channel message maps to group",
			envelope: gotdUpdateEnvelope{
				update: &tg.UpdateNewChannelMessage{
					Message: &tg.Message{
						ID:      5,
						PeerID:  &tg.PeerChannel{ChannelID: 300},
						FromID:  &tg.PeerUser{UserID: 42},
						Message: "/mylists",
					},
				},
				occurredAt: occurredAt,
				usersByID:  map[int64]*tg.User{42: alice},
				chatsByID: indexGotdChats([]tg.ChatClass{
					newTGChannel(300, "manage", true),
				}),
			},
			wantAccepted: true,
			assert: func(t *testing.T, got Update) {
				t.Helper()
				if got.Chat.Type != otogi.ConversationTypeGroup {
					t.Fatalf("chat type = %s, want group", got.Chat.Type)
				}
				if !got.OccurredAt.Equal(occurredAt) {
					t.Fatalf("occurred_at = %v, want envelope fallback %v", got.OccurredAt, occurredAt)
				}
			},
		},
		{
			name: "private message uses user as conversation",
			envelope: gotdUpdateEnvelope{
				update: &tg.UpdateNewMessage{
					Message: &tg.Message{
						ID:      8,
						PeerID:  &tg.PeerUser{UserID: 42},
						Message: "hello",
					},
				},
				occurredAt: occurredAt,
				usersByID:  map[int64]*tg.User{42: alice},
			},
			wantAccepted: true,
			assert: func(t *testing.T, got Update) {
				t.Helper()
				if got.Chat.ID != "42" || got.Chat.Type != otogi.ConversationTypePrivate {
					t.Fatalf("chat = %+v, want private 42", got.Chat)
				}
				if got.Actor.ID != "42" {
					t.Fatalf("actor = %+v, want 42", got.Actor)
				}
			},
		},
		{
			name: "outgoing message skipped",
			envelope: gotdUpdateEnvelope{
				update: &tg.UpdateNewMessage{
					Message: &tg.Message{ID: 9, Out: true, PeerID: &tg.PeerChat{ChatID: 100}},
				},
			},
		},
		{
			name: "service message skipped",
			envelope: gotdUpdateEnvelope{
				update: &tg.UpdateNewMessage{
					Message: &tg.MessageService{ID: 10, PeerID: &tg.PeerChat{ChatID: 100}},
				},
			},
		},
		{
			name: "edit skipped",
			envelope: gotdUpdateEnvelope{
				update: &tg.UpdateEditMessage{Message: &tg.Message{ID: 11}},
			},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, accepted, err := NewDefaultGotdUpdateMapper().Map(context.Background(), testCase.envelope)
			if err != nil {
				t.Fatalf("map failed: %v", err)
			}
			if accepted != testCase.wantAccepted {
				t.Fatalf("accepted = %v, want %v", accepted, testCase.wantAccepted)
			}
			if testCase.assert != nil {
				testCase.assert(t, got)
			}
		})
	}
}

func TestDefaultGotdUpdateMapperRemembersPeers(t *testing.T) {
	t.Parallel()

	cache := NewPeerCache()
	mapper := NewDefaultGotdUpdateMapper(WithPeerCache(cache))

	_, accepted, err := mapper.Map(context.Background(), gotdUpdateEnvelope{
		update: &tg.UpdateNewChannelMessage{
			Message: &tg.Message{
				ID:      1,
				PeerID:  &tg.PeerChannel{ChannelID: 300},
				FromID:  &tg.PeerUser{UserID: 42},
				Message: "/addhave 3",
			},
		},
		usersByID: map[int64]*tg.User{42: newTGUser(42, "alice", "Alice", "", false)},
		chatsByID: indexGotdChats([]tg.ChatClass{
			newTGChannel(300, "have-list", true),
		}),
	})
	if err != nil || !accepted {
		t.Fatalf("map = (%v, %v), want accepted", accepted, err)
	}

	peer, err := cache.Resolve(otogi.Conversation{ID: "42", Type: otogi.ConversationTypePrivate})
	if err != nil {
		t.Fatalf("resolve private peer failed: %v", err)
	}
	if user, ok := peer.(*tg.InputPeerUser); !ok || user.AccessHash != 420 {
		t.Fatalf("private peer = %#v, want user with access hash", peer)
	}

	peer, err = cache.Resolve(otogi.Conversation{ID: "300", Type: otogi.ConversationTypeGroup})
	if err != nil {
		t.Fatalf("resolve group peer failed: %v", err)
	}
	if channel, ok := peer.(*tg.InputPeerChannel); !ok || channel.AccessHash != 3 {
		t.Fatalf("group peer = %#v, want channel with access hash", peer)
	}
}

func TestDefaultGotdUpdateMapperRejectsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := NewDefaultGotdUpdateMapper().Map(ctx, gotdUpdateEnvelope{
		update: &tg.UpdateNewMessage{Message: &tg.Message{ID: 1}},
	}); err == nil {
		t.Fatal("expected context error")
	}
}
