package eventstream

import (
	"context"

	"github.com/goware/logger"
	"github.com/hyperledger/firefly-tokens-connector/poollocator"
)

func expectedEvents(schema string) map[string]bool {
	if schema == poollocator.SchemaERC721NoData || schema == poollocator.SchemaERC721WithData || schema == poollocator.SchemaERC721LegacyData {
		return map[string]bool{"Transfer": true, "Approval": true, "ApprovalForAll": true}
	}
	return map[string]bool{"Transfer": true}
}

// CheckMigration enumerates the topic's existing stream (if any) and its
// subscriptions, grouping them by pool locator, and logs a WARN for any
// pool whose subscribed event set doesn't match what its schema expects.
// It never returns an error that should abort startup — a stateless
// connector has no other source of truth for "known pools" than the
// subscriptions the upstream service already holds.
func CheckMigration(ctx context.Context, svc Service, topic string, log logger.Logger) {
	streams, err := svc.ListStreams(ctx)
	if err != nil {
		log.Warnf("eventstream: migration check could not list streams: %v", err)
		return
	}

	var stream *Stream
	for i := range streams {
		if streams[i].Name == topic {
			stream = &streams[i]
			break
		}
	}
	if stream == nil {
		// No pre-existing stream for this topic: nothing to migrate.
		return
	}

	subs, err := svc.ListSubscriptions(ctx, stream.ID)
	if err != nil {
		log.Warnf("eventstream: migration check could not list subscriptions for stream %s: %v", stream.ID, err)
		return
	}

	byLocator := map[string]map[string]bool{}
	for _, sub := range subs {
		name, err := poollocator.UnpackSubscriptionName(topic, sub.Name)
		if err != nil {
			continue
		}
		if byLocator[name.PoolLocator] == nil {
			byLocator[name.PoolLocator] = map[string]bool{}
		}
		byLocator[name.PoolLocator][name.Event] = true
	}

	for locatorStr, got := range byLocator {
		locator := poollocator.Unpack(locatorStr)
		want := expectedEvents(locator.Schema)
		for event := range want {
			if !got[event] {
				log.Warnf("eventstream: pool %s is missing a %q subscription; re-activate the pool to restore full event coverage", locatorStr, event)
			}
		}
	}
}
