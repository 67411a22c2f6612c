// Package notify posts source outage and recovery notices to Slack. The
// notifier is optional; without a token every call is a no-op.
package notify

import (
	"fmt"
	"log"

	"github.com/slack-go/slack"
)

// Notifier sends operational notices about source health transitions
type Notifier struct {
	client  *slack.Client
	channel string
}

// NewNotifier creates a Slack notifier. An empty token or channel disables it.
func NewNotifier(token, channel string) *Notifier {
	if token == "" || channel == "" {
		return &Notifier{}
	}
	return &Notifier{client: slack.New(token), channel: channel}
}

// Enabled reports whether notifications are configured
func (n *Notifier) Enabled() bool {
	return n.client != nil
}

// SourceDown announces that a source started failing
func (n *Notifier) SourceDown(sourceName string, failureStreak int, errMsg string) {
	n.post(fmt.Sprintf(":red_circle: Alert source *%s* is failing (streak %d): %s", sourceName, failureStreak, errMsg))
}

// SourceRecovered announces that a failing source is healthy again
func (n *Notifier) SourceRecovered(sourceName string) {
	n.post(fmt.Sprintf(":large_green_circle: Alert source *%s* recovered", sourceName))
}

func (n *Notifier) post(text string) {
	if n.client == nil {
		return
	}
	_, _, err := n.client.PostMessage(n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("Failed to post Slack notification: %v", err)
	}
}
