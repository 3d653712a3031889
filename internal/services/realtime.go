package services

import (
	"context"

	pubnub "github.com/pubnub/go/v7"
)

// PubNubPublisher publishes realtime payloads on PubNub channels. Shop
// observers subscribe to shop-{id}, customers to their own user-{id}.
type PubNubPublisher struct {
	pn *pubnub.PubNub
}

func NewPubNubPublisher(pn *pubnub.PubNub) *PubNubPublisher {
	return &PubNubPublisher{pn: pn}
}

func (p *PubNubPublisher) Publish(ctx context.Context, channel string, payload map[string]any) error {
	_, _, err := p.pn.Publish().
		Channel(channel).
		Message(payload).
		Execute()
	return err
}
