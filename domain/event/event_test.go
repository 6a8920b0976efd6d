package event

import (
	"collab-realtime/domain"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestType_Strategy(t *testing.T) {
	req := require.New(t)

	req.Equal(StrategyGroupBroadcast, NewMessage.Strategy())
	req.Equal(StrategyGroupBroadcast, NewDocument.Strategy())
	req.Equal(StrategyGroupBroadcast, DocumentUpdated.Strategy())
	req.Equal(StrategyGroupBroadcast, NewFile.Strategy())
	req.Equal(StrategyGroupBroadcast, UserJoined.Strategy())
	req.Equal(StrategyGroupBroadcast, UserLeft.Strategy())
	req.Equal(StrategyDirect, Notification.Strategy())
	req.Equal(StrategyNone, GroupCreated.Strategy())
	req.Equal(StrategyNone, GroupUpdated.Strategy())
	req.Equal(StrategyNone, Type("TYPING").Strategy())
}

func TestType_ExcludesSender(t *testing.T) {
	req := require.New(t)

	for _, typ := range []Type{NewMessage, NewDocument, DocumentUpdated, NewFile} {
		req.True(typ.ExcludesSender(), typ)
	}
	// membership changes are confirmed to everyone, actor included
	req.False(UserJoined.ExcludesSender())
	req.False(UserLeft.ExcludesSender())
}

func TestType_FallbackCategory(t *testing.T) {
	req := require.New(t)

	req.Equal(domain.CategoryMessage, NewMessage.FallbackCategory())
	req.Equal(domain.CategoryDocument, DocumentUpdated.FallbackCategory())
	req.Equal(domain.CategoryFile, NewFile.FallbackCategory())
	req.Empty(UserJoined.FallbackCategory())
	req.Empty(Notification.FallbackCategory())
}

func TestTypes_All_Known_With_Payload(t *testing.T) {
	req := require.New(t)

	req.Len(Types(), 9)
	for _, typ := range Types() {
		req.True(typ.Known())
		req.NotNil(NewPayload(typ))
	}
	req.False(Type("").Known())
	req.Nil(NewPayload("TYPING"))
}

func TestEnvelope_Target(t *testing.T) {
	req := require.New(t)

	env := Envelope{Type: Notification, Body: &DirectPayload{TargetUserID: 12}}
	target, ok := env.Target()
	req.True(ok)
	req.Equal(domain.UserID(12), target)
	_, ok = env.Group()
	req.False(ok)
	req.Zero(env.Actor())
}
