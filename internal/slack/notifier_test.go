package slack

import (
	"context"
	"strings"
	"testing"

	"github.com/slack-go/slack"
)

func TestNewNotifier_Validation(t *testing.T) {
	if _, err := NewNotifier("", "C01234567890", ""); err == nil {
		t.Error("expected error for empty token")
	}
	if _, err := NewNotifier("xoxb-test", "", ""); err == nil {
		t.Error("expected error for empty channel")
	}
	if _, err := NewNotifier("xoxb-test", "C01234567890", "://bad"); err == nil {
		t.Error("expected error for invalid proxy")
	}
}

func TestNotifier_Post(t *testing.T) {
	f := newFakeSlack(t)
	f.channels["public_channel"] = []map[string]string{{"id": "C22222222222", "name": "ops-digest"}}

	n, err := NewNotifier("xoxb-test", "#ops-digest", "", slack.OptionAPIURL(f.server.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()

	block := slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "*3* problems", false, false), nil, nil)
	ts, err := n.Post(context.Background(), "3 problems", block)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if ts != "1700000000.000100" {
		t.Errorf("unexpected ts %q", ts)
	}

	posted := f.messages()
	if len(posted) != 1 {
		t.Fatalf("expected one message, got %d", len(posted))
	}
	msg := posted[0]
	if msg["channel"] != "C22222222222" {
		t.Errorf("posted to %q", msg["channel"])
	}
	if msg["text"] != "3 problems" {
		t.Errorf("unexpected text %q", msg["text"])
	}
	if !strings.Contains(msg["blocks"], "*3* problems") {
		t.Errorf("blocks missing section text: %s", msg["blocks"])
	}
}

func TestNotifier_Post_UnknownChannel(t *testing.T) {
	f := newFakeSlack(t)
	n, err := NewNotifier("xoxb-test", "nowhere", "", slack.OptionAPIURL(f.server.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()

	if _, err := n.Post(context.Background(), "hello"); err == nil {
		t.Error("expected error for unresolvable channel")
	}
	if f.count("chat.postMessage") != 0 {
		t.Error("nothing should be posted")
	}
}

func TestNotifier_Post_StaleChannelIsResolvedAgain(t *testing.T) {
	f := newFakeSlack(t)
	f.channels["public_channel"] = []map[string]string{{"id": "C22222222222", "name": "ops-digest"}}
	f.postError = "channel_not_found"

	n, err := NewNotifier("xoxb-test", "#ops-digest", "", slack.OptionAPIURL(f.server.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()

	if _, err := n.Post(context.Background(), "first"); err == nil {
		t.Fatal("expected post error")
	}
	lookups := f.count("conversations.list")

	f.mu.Lock()
	f.postError = ""
	f.channels["public_channel"] = []map[string]string{{"id": "C33333333333", "name": "ops-digest"}}
	f.mu.Unlock()

	if _, err := n.Post(context.Background(), "second"); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if f.count("conversations.list") <= lookups {
		t.Error("expected the channel to be looked up again after channel_not_found")
	}
	if posted := f.messages(); len(posted) != 1 || posted[0]["channel"] != "C33333333333" {
		t.Errorf("posted = %v", posted)
	}
}

func TestNotifier_Post_OtherErrorsKeepCache(t *testing.T) {
	f := newFakeSlack(t)
	f.channels["public_channel"] = []map[string]string{{"id": "C22222222222", "name": "ops-digest"}}
	f.postError = "rate_limited"

	n, err := NewNotifier("xoxb-test", "#ops-digest", "", slack.OptionAPIURL(f.server.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()

	_, _ = n.Post(context.Background(), "first")
	lookups := f.count("conversations.list")
	_, _ = n.Post(context.Background(), "second")
	if f.count("conversations.list") != lookups {
		t.Error("channel cache should survive unrelated errors")
	}
}
