package otogi

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOutboundRequestValidation(t *testing.T) {
	t.Parallel()

	group := OutboundTarget{Conversation: Conversation{ID: "-100", Type: ConversationTypeGroup}}
	tests := []struct {
		name    string
		request interface{ Validate() error }
		wantErr string
	}{
		{name: "send", request: SendMessageRequest{Target: group, Text: "Match found!"}},
		{name: "send without text", request: SendMessageRequest{Target: group}, wantErr: "missing message text"},
		{name: "delete", request: DeleteMessageRequest{Target: group, MessageID: "7", Revoke: true}},
		{name: "delete without id", request: DeleteMessageRequest{Target: group}, wantErr: "missing message id"},
		{
			name:    "send without conversation type",
			request: SendMessageRequest{Target: OutboundTarget{Conversation: Conversation{ID: "-100"}}, Text: "x"},
			wantErr: "validate send message target: " + ErrInvalidOutboundRequest.Error() + ": missing conversation type",
		},
		{
			name:    "delete without conversation id",
			request: DeleteMessageRequest{Target: OutboundTarget{}, MessageID: "7"},
			wantErr: "missing conversation id",
		},
		{
			name: "zero sink",
			request: SendMessageRequest{
				Target: OutboundTarget{Conversation: group.Conversation, Sink: &EventSource{}},
				Text:   "x",
			},
			wantErr: "missing sink identity",
		},
		{name: "direct target", request: SendMessageRequest{Target: DirectTarget("100", EventSource{}), Text: "x"}},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := testCase.request.Validate()
			if testCase.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidOutboundRequest) {
				t.Fatalf("Validate() error = %v, want ErrInvalidOutboundRequest", err)
			}
			if !strings.Contains(err.Error(), testCase.wantErr) {
				t.Fatalf("Validate() error = %q, want substring %q", err, testCase.wantErr)
			}
		})
	}
}

func TestDirectTarget(t *testing.T) {
	t.Parallel()

	telegram := EventSource{Platform: PlatformTelegram, ID: "tg-main"}
	tests := []struct {
		name string
		via  EventSource
		want OutboundTarget
	}{
		{
			name: "member seen by a driver",
			via:  telegram,
			want: OutboundTarget{
				Conversation: Conversation{ID: "100", Type: ConversationTypePrivate},
				Sink:         &telegram,
			},
		},
		{
			name: "member never seen",
			want: OutboundTarget{Conversation: Conversation{ID: "100", Type: ConversationTypePrivate}},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if diff := cmp.Diff(testCase.want, DirectTarget("100", testCase.via)); diff != "" {
				t.Fatalf("DirectTarget() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOutboundTargetFromEvent(t *testing.T) {
	t.Parallel()

	manage := Conversation{ID: "-300", Type: ConversationTypeGroup, Title: "trade-manage"}
	telegram := EventSource{Platform: PlatformTelegram, ID: "tg-main"}

	tests := []struct {
		name    string
		event   *Event
		want    OutboundTarget
		wantErr bool
	}{
		{
			name:  "reply through the receiving driver",
			event: &Event{Kind: EventKindCommandReceived, Source: telegram, Conversation: manage},
			want:  OutboundTarget{Conversation: manage, Sink: &telegram},
		},
		{
			name:  "unsourced event leaves sink open",
			event: &Event{Kind: EventKindCommandReceived, Conversation: manage},
			want:  OutboundTarget{Conversation: manage},
		},
		{name: "nil event", wantErr: true},
		{
			name:    "event without conversation",
			event:   &Event{Kind: EventKindArticleCreated, Source: telegram},
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			target, err := OutboundTargetFromEvent(testCase.event)
			if testCase.wantErr {
				if !errors.Is(err, ErrInvalidOutboundRequest) {
					t.Fatalf("error = %v, want ErrInvalidOutboundRequest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("OutboundTargetFromEvent() error = %v", err)
			}
			if diff := cmp.Diff(testCase.want, target); diff != "" {
				t.Fatalf("target mismatch (-want +got):\n%s", diff)
			}
			if target.Sink != nil && target.Sink == &testCase.event.Source {
				t.Fatal("target sink aliases the event source")
			}
		})
	}
}
