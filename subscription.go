package pushsub

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type (
	// SubscriptionName is the canonical key of a server-side event stream:
	// "type" when no object id is given, "type_objectID" otherwise.
	SubscriptionName string

	// HandlerID names one local listener. It is unique only within a single
	// SubscriptionName, so two streams may both have a handler called "panel".
	HandlerID string

	// Subscription identifies a server-side event stream by category and an
	// optional object it is scoped to.
	Subscription struct {
		Type     string
		ObjectID string
	}
)

// ForType returns a Subscription to a whole category.
func ForType(subscriptionType string) Subscription {
	return Subscription{Type: subscriptionType}
}

// ForObject returns a Subscription scoped to a numeric entity id.
func ForObject(subscriptionType string, objectID int64) Subscription {
	return Subscription{Type: subscriptionType, ObjectID: strconv.FormatInt(objectID, 10)}
}

// Name is the canonical subscription name. Equal descriptors always map to the
// same name, and distinct descriptors may collide ("a_b" vs ("a", "b")) exactly
// as their string forms do; maps in this package are keyed by the name.
func (s Subscription) Name() SubscriptionName {
	if s.ObjectID == "" {
		return SubscriptionName(s.Type)
	}
	return SubscriptionName(s.Type + "_" + s.ObjectID)
}

func (s Subscription) String() string {
	return string(s.Name())
}

// ParseSubscription reads the "type" or "type:objectID" form used on command lines.
func ParseSubscription(raw string) (Subscription, error) {
	subscriptionType, objectID, _ := strings.Cut(strings.TrimSpace(raw), ":")
	if subscriptionType == "" {
		return Subscription{}, errors.Errorf("empty subscription type in %q", raw)
	}
	return Subscription{Type: subscriptionType, ObjectID: objectID}, nil
}
