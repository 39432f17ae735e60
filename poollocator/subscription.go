package poollocator

import (
	"fmt"
	"net/url"
	"strings"
)

// SubscriptionName is the colon-joined tuple that uniquely identifies one
// event subscription in the upstream event-stream service.
type SubscriptionName struct {
	PoolLocator string
	Event       string
	PoolData    string
}

// PackSubscriptionName builds "<topic>:<poolLocator>:<eventName>[:<urlencoded(poolData)>]".
// poolData is URL-escaped so that any colons it contains survive the round trip.
func PackSubscriptionName(topic string, name SubscriptionName) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%s:%s", topic, name.PoolLocator, name.Event)
	if name.PoolData != "" {
		fmt.Fprintf(&b, ":%s", url.QueryEscape(name.PoolData))
	}
	return b.String()
}

// UnpackSubscriptionName strips the configured topic prefix and parses the
// remainder into a SubscriptionName. It tolerates the legacy 2-segment form
// (poolLocator:event, no poolData segment).
func UnpackSubscriptionName(topic string, s string) (SubscriptionName, error) {
	prefix := topic + ":"
	if !strings.HasPrefix(s, prefix) {
		return SubscriptionName{}, fmt.Errorf("subscription name %q does not start with topic prefix %q", s, topic)
	}
	rest := strings.TrimPrefix(s, prefix)

	parts := strings.SplitN(rest, ":", 3)
	if len(parts) < 2 {
		return SubscriptionName{}, fmt.Errorf("subscription name %q is missing a pool locator or event segment", s)
	}

	name := SubscriptionName{
		PoolLocator: parts[0],
		Event:       parts[1],
	}
	if len(parts) == 3 {
		poolData, err := url.QueryUnescape(parts[2])
		if err != nil {
			return SubscriptionName{}, fmt.Errorf("subscription name %q has an invalid poolData segment: %w", s, err)
		}
		name.PoolData = poolData
	}
	return name, nil
}
