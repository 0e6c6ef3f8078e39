package wire

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/xmtp-go/core/identity"
)

// Kind identifies which of the four topic shapes a Topic carries.
type Kind string

const (
	KindDM     Kind = "dm"
	KindIntro  Kind = "intro"
	KindInvite Kind = "invite"
	KindV2     Kind = "m"
)

const (
	topicPrefix = "/xmtp/0/"
	topicSuffix = "/proto"
)

// Topic is a pub/sub channel name of the form
// "/xmtp/0/<kind>-<qualifier>/proto".
type Topic struct {
	kind      Kind
	qualifier string
}

// String renders the topic's wire form.
func (t Topic) String() string {
	return topicPrefix + string(t.kind) + "-" + t.qualifier + topicSuffix
}

// Kind returns which topic shape this is.
func (t Topic) Kind() Kind { return t.kind }

// Qualifier returns the part of the topic after "<kind>-" and before
// "/proto".
func (t Topic) Qualifier() string { return t.qualifier }

// DMTopic builds a v1 direct-message topic for the pair (a, b), sorting the
// two addresses lexicographically so both participants derive the identical
// topic string regardless of call order.
func DMTopic(a, b identity.Address) Topic {
	lo, hi := a, b
	if b.Less(a) {
		lo, hi = b, a
	}
	return Topic{kind: KindDM, qualifier: lo.String() + "-" + hi.String()}
}

// IntroTopic builds the per-address introduction channel for addr.
func IntroTopic(addr identity.Address) Topic {
	return Topic{kind: KindIntro, qualifier: addr.String()}
}

// InviteTopic builds the per-address invitation channel for addr.
func InviteTopic(addr identity.Address) Topic {
	return Topic{kind: KindInvite, qualifier: addr.String()}
}

// V2TopicFromSeed builds an opaque v2 conversation topic from a
// deterministic topic seed, base64url-encoded without padding.
func V2TopicFromSeed(seed []byte) Topic {
	return Topic{kind: KindV2, qualifier: base64.RawURLEncoding.EncodeToString(seed)}
}

// V2TopicOpaque builds an opaque v2 conversation topic from an arbitrary
// hex qualifier, used by explicit (non-deterministic) invitations.
func V2TopicOpaque(hexQualifier string) Topic {
	return Topic{kind: KindV2, qualifier: hexQualifier}
}

// Parse recognizes any of the four topic shapes and reports an error for
// anything that doesn't match the "/xmtp/0/<kind>-<qualifier>/proto"
// grammar.
func Parse(s string) (Topic, error) {
	if !strings.HasPrefix(s, topicPrefix) || !strings.HasSuffix(s, topicSuffix) {
		return Topic{}, fmt.Errorf("wire: malformed topic %q", s)
	}
	body := strings.TrimSuffix(strings.TrimPrefix(s, topicPrefix), topicSuffix)
	idx := strings.IndexByte(body, '-')
	if idx < 0 {
		return Topic{}, fmt.Errorf("wire: malformed topic %q", s)
	}
	kind := Kind(body[:idx])
	qualifier := body[idx+1:]
	switch kind {
	case KindDM, KindIntro, KindInvite, KindV2:
		return Topic{kind: kind, qualifier: qualifier}, nil
	default:
		return Topic{}, fmt.Errorf("wire: unknown topic kind %q in %q", kind, s)
	}
}
