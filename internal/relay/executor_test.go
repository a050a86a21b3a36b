package relay

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicbot/mosaic/internal/guild"
	"github.com/mosaicbot/mosaic/internal/identity"
	"github.com/mosaicbot/mosaic/internal/persona"
)

type executorFixture struct {
	platform   *fakePlatform
	personas   *fakePersonas
	autoproxy  *fakeAutoproxy
	identities *fakeIdentities
	records    *fakeLedger
	guilds     *fakeGuilds
	exec       *Executor
}

func newExecutorFixture(personas ...persona.Persona) *executorFixture {
	f := &executorFixture{
		platform:   newFakePlatform(),
		personas:   &fakePersonas{personas: personas},
		autoproxy:  &fakeAutoproxy{},
		identities: &fakeIdentities{},
		records:    newFakeLedger(),
		guilds:     &fakeGuilds{},
	}
	log := slog.Default()
	transform := NewTransformer(log, f.platform, f.records, "https://cdn.example/default.png", 25_000_000)
	f.exec = NewExecutor(log, f.platform, f.personas, &fakeCollectives{}, f.autoproxy,
		f.identities, f.records, f.guilds, transform)
	return f
}

func baseMessage() Message {
	return Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		AuthorID:  "u1",
		Content:   "A:hello",
	}
}

func TestHandleMessageRelaysOnTagMatch(t *testing.T) {
	f := newExecutorFixture(persona.Persona{OwnerID: "u1", Name: "Ash", AvatarURL: "https://cdn.example/ash.png", Tag: persona.Tag{Prefix: "A:"}})

	require.NoError(t, f.exec.HandleMessage(context.Background(), baseMessage()))

	require.Len(t, f.platform.sent, 1)
	sent := f.platform.sent[0]
	assert.Equal(t, "hello", sent.Content)
	assert.Equal(t, "Ash", sent.Username)
	assert.Equal(t, "https://cdn.example/ash.png", sent.AvatarURL)

	// original deleted after the relayed copy exists
	assert.Equal(t, []string{"m1"}, f.platform.deleted)

	rec, ok := f.records.records["relayed-1"]
	require.True(t, ok, "ledger record missing")
	assert.Equal(t, "u1", rec.OwnerID)
	assert.Equal(t, "Ash", rec.PersonaName)
	assert.Equal(t, "g1", rec.GuildID)

	assert.Equal(t, []string{"g1/Ash"}, f.autoproxy.latched)
}

func TestHandleMessageAppendsCollectiveTag(t *testing.T) {
	f := newExecutorFixture(persona.Persona{OwnerID: "u1", Name: "Ash", Tag: persona.Tag{Prefix: "A:"}})
	transform := NewTransformer(slog.Default(), f.platform, f.records, "", 25_000_000)
	f.exec = NewExecutor(slog.Default(), f.platform, f.personas,
		&fakeCollectives{coll: collectiveWithTag("| team")}, f.autoproxy,
		f.identities, f.records, f.guilds, transform)

	require.NoError(t, f.exec.HandleMessage(context.Background(), baseMessage()))
	require.Len(t, f.platform.sent, 1)
	assert.Equal(t, "Ash | team", f.platform.sent[0].Username)
}

func TestHandleMessageIgnoresBots(t *testing.T) {
	f := newExecutorFixture(persona.Persona{OwnerID: "u1", Name: "Ash", Tag: persona.Tag{Prefix: "A:"}})
	msg := baseMessage()
	msg.AuthorBot = true

	require.NoError(t, f.exec.HandleMessage(context.Background(), msg))
	assert.Empty(t, f.platform.sent)
}

func TestHandleMessagePassThroughWithoutPersonas(t *testing.T) {
	f := newExecutorFixture()

	require.NoError(t, f.exec.HandleMessage(context.Background(), baseMessage()))
	assert.Empty(t, f.platform.sent)
	assert.Empty(t, f.platform.deleted)
}

func TestHandleMessagePassThroughWhenAutoproxyDeclines(t *testing.T) {
	f := newExecutorFixture(persona.Persona{OwnerID: "u1", Name: "Ash", Tag: persona.Tag{Prefix: "A:"}})
	msg := baseMessage()
	msg.Content = "no tag here"

	require.NoError(t, f.exec.HandleMessage(context.Background(), msg))
	assert.Empty(t, f.platform.sent)
	assert.Empty(t, f.autoproxy.latched)
}

func TestHandleMessageAutoproxyFallback(t *testing.T) {
	f := newExecutorFixture(persona.Persona{OwnerID: "u1", Name: "Ash", Tag: persona.Tag{Prefix: "A:"}})
	f.autoproxy.resolved = &persona.Persona{OwnerID: "u1", Name: "Quill"}
	msg := baseMessage()
	msg.Content = "no tag here"

	require.NoError(t, f.exec.HandleMessage(context.Background(), msg))
	require.Len(t, f.platform.sent, 1)
	assert.Equal(t, "Quill", f.platform.sent[0].Username)
	assert.Equal(t, "no tag here", f.platform.sent[0].Content)
	// autoproxy decisions never write the latch
	assert.Empty(t, f.autoproxy.latched)
}

func TestHandleMessageEscapeClearsLatch(t *testing.T) {
	f := newExecutorFixture(persona.Persona{OwnerID: "u1", Name: "Ash", Tag: persona.Tag{Prefix: "A:"}})
	msg := baseMessage()
	msg.Content = `\A:hello`

	require.NoError(t, f.exec.HandleMessage(context.Background(), msg))
	assert.Empty(t, f.platform.sent)
	assert.Equal(t, 1, f.autoproxy.cleared)
}

func TestHandleEditSkipsLatchUpdate(t *testing.T) {
	f := newExecutorFixture(persona.Persona{OwnerID: "u1", Name: "Ash", Tag: persona.Tag{Prefix: "A:"}})

	require.NoError(t, f.exec.HandleEdit(context.Background(), baseMessage()))
	require.Len(t, f.platform.sent, 1)
	assert.Empty(t, f.autoproxy.latched)
}

func TestHandleMessagePermissionDeniedDegrades(t *testing.T) {
	f := newExecutorFixture(persona.Persona{OwnerID: "u1", Name: "Ash", Tag: persona.Tag{Prefix: "A:"}})
	f.identities.err = identity.ErrPermissionDenied

	require.NoError(t, f.exec.HandleMessage(context.Background(), baseMessage()))
	assert.Empty(t, f.platform.sent)
	assert.Empty(t, f.platform.deleted)
}

func TestHandleMessageRetriesLedgerWrite(t *testing.T) {
	f := newExecutorFixture(persona.Persona{OwnerID: "u1", Name: "Ash", Tag: persona.Tag{Prefix: "A:"}})
	f.records.putFails = 1

	require.NoError(t, f.exec.HandleMessage(context.Background(), baseMessage()))
	_, ok := f.records.records["relayed-1"]
	assert.True(t, ok, "ledger record missing after retry")
}

func TestHandleMessageThreadRoutesThroughParent(t *testing.T) {
	f := newExecutorFixture(persona.Persona{OwnerID: "u1", Name: "Ash", Tag: persona.Tag{Prefix: "A:"}})
	f.identities.threadID = "t1"
	msg := baseMessage()
	msg.ChannelID = "t1"

	require.NoError(t, f.exec.HandleMessage(context.Background(), msg))
	require.Len(t, f.platform.sent, 1)
	assert.Equal(t, "t1", f.platform.sent[0].ThreadID)
}

func TestHandleMessagePostsProxyLog(t *testing.T) {
	f := newExecutorFixture(persona.Persona{OwnerID: "u1", Name: "Ash", Tag: persona.Tag{Prefix: "A:"}})
	f.guilds.g = guild.Guild{ProxyLogChannelID: "log-channel"}

	require.NoError(t, f.exec.HandleMessage(context.Background(), baseMessage()))
	require.Len(t, f.platform.sent, 2)
	logged := f.platform.sent[1]
	require.Len(t, logged.Embeds, 1)
	assert.Contains(t, logged.Embeds[0].Description, "Ash")
	assert.Contains(t, logged.Embeds[0].Description, "relayed-1")
	assert.Contains(t, f.identities.calls, "log-channel")
}

func TestHandleMessageDeleteFailureStillRecords(t *testing.T) {
	f := newExecutorFixture(persona.Persona{OwnerID: "u1", Name: "Ash", Tag: persona.Tag{Prefix: "A:"}})
	f.platform.deleteErr = assert.AnError

	require.NoError(t, f.exec.HandleMessage(context.Background(), baseMessage()))
	_, ok := f.records.records["relayed-1"]
	assert.True(t, ok, "ledger record missing when delete fails")
}
