package trade

import (
	"context"
	"errors"
	"testing"
	"time"

	tradecore "ex-otogi-trade/internal/trade"
	"ex-otogi-trade/pkg/otogi"
)

func TestModuleHandleArticleGating(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		channel     string
		actor       otogi.Actor
		text        string
		deleteErr   error
		wantDeleted bool
		wantNotice  string
	}{
		{
			name:        "plain text in want channel is removed",
			channel:     testWantChannel,
			actor:       otogi.Actor{ID: "100"},
			text:        "anyone have gamma?",
			wantDeleted: true,
			wantNotice:  "Please only use commands in trading.",
		},
		{
			name:        "plain text in have channel is removed",
			channel:     testHaveChannel,
			actor:       otogi.Actor{ID: "100"},
			text:        "selling",
			wantDeleted: true,
			wantNotice:  "Please only use commands in trading.",
		},
		{
			name:    "commands stay",
			channel: testWantChannel,
			actor:   otogi.Actor{ID: "100"},
			text:    "/addwant 1",
		},
		{
			name:    "unregistered commands stay",
			channel: testWantChannel,
			actor:   otogi.Actor{ID: "100"},
			text:    "/start",
		},
		{
			name:    "bots are ignored",
			channel: testWantChannel,
			actor:   otogi.Actor{ID: "900", IsBot: true},
			text:    "beep",
		},
		{
			name:    "manage channel is not gated",
			channel: testManageChannel,
			actor:   otogi.Actor{ID: "100"},
			text:    "hello",
		},
		{
			name:        "delete failure still sends notice",
			channel:     testWantChannel,
			actor:       otogi.Actor{ID: "100"},
			text:        "hello",
			deleteErr:   errors.New("not enough rights"),
			wantDeleted: true,
			wantNotice:  "Please only use commands in trading.",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			dispatcher := &recordingDispatcher{delErr: testCase.deleteErr}
			module := newTestModule(t, gatedConfig(), tradecore.NewMemoryStore(), dispatcher)

			event := newArticleEvent(testCase.channel, testCase.actor, testCase.text)
			if err := module.handleArticle(context.Background(), event); err != nil {
				t.Fatalf("handle article failed: %v", err)
			}

			deletions := dispatcher.deletions()
			if testCase.wantDeleted != (len(deletions) == 1) {
				t.Fatalf("deletions = %d, want deleted %v", len(deletions), testCase.wantDeleted)
			}
			if testCase.wantDeleted && deletions[0].MessageID != event.Article.ID {
				t.Fatalf("deleted message = %q, want %q", deletions[0].MessageID, event.Article.ID)
			}

			notices := dispatcher.sentTo(testCase.actor.ID)
			if testCase.wantNotice == "" {
				if len(notices) != 0 {
					t.Fatalf("notices = %d, want 0", len(notices))
				}
				return
			}
			if len(notices) != 1 {
				t.Fatalf("notices = %d, want 1", len(notices))
			}
			if notices[0].Text != testCase.wantNotice {
				t.Fatalf("notice = %q, want %q", notices[0].Text, testCase.wantNotice)
			}
			if notices[0].Target.Conversation.Type != otogi.ConversationTypePrivate {
				t.Fatalf("notice conversation type = %q, want private", notices[0].Target.Conversation.Type)
			}
		})
	}
}

func newArticleEvent(conversationID string, actor otogi.Actor, text string) *otogi.Event {
	return &otogi.Event{
		ID:         "article-1",
		Kind:       otogi.EventKindArticleCreated,
		OccurredAt: time.Unix(1, 0).UTC(),
		Source: otogi.EventSource{
			Platform: otogi.PlatformTelegram,
			ID:       "tg-main",
		},
		Conversation: otogi.Conversation{
			ID:    conversationID,
			Type:  otogi.ConversationTypeGroup,
			Title: "trading",
		},
		Actor: actor,
		Article: &otogi.Article{
			ID:   "msg-7",
			Text: text,
		},
	}
}
