package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mosaicbot/mosaic/internal/collective"
	"github.com/mosaicbot/mosaic/internal/guild"
	"github.com/mosaicbot/mosaic/internal/identity"
	"github.com/mosaicbot/mosaic/internal/ledger"
	"github.com/mosaicbot/mosaic/internal/persona"
)

type fakePlatform struct {
	sent      []SendRequest
	sendErr   error
	nextID    int
	deleted   []string
	deleteErr error
	retracted []string
	fetched   FetchedMessage
	fetchErr  error
	dms       map[string]string
	removed   []string
	downloads map[string]string
	openErr   error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{dms: map[string]string{}, downloads: map[string]string{}}
}

func (f *fakePlatform) SendAsIdentity(_ context.Context, req SendRequest) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, req)
	f.nextID++
	return fmt.Sprintf("relayed-%d", f.nextID), nil
}

func (f *fakePlatform) DeleteMessage(_ context.Context, channelID, messageID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakePlatform) DeleteIdentityMessage(_ context.Context, _ identity.Record, _, _, messageID string) error {
	f.retracted = append(f.retracted, messageID)
	return nil
}

func (f *fakePlatform) FetchMessage(_ context.Context, _, _ string) (FetchedMessage, error) {
	if f.fetchErr != nil {
		return FetchedMessage{}, f.fetchErr
	}
	return f.fetched, nil
}

func (f *fakePlatform) DirectMessage(_ context.Context, userID, content string) error {
	f.dms[userID] = content
	return nil
}

func (f *fakePlatform) RemoveReaction(_ context.Context, _, messageID, emoji, _ string) error {
	f.removed = append(f.removed, messageID+":"+emoji)
	return nil
}

func (f *fakePlatform) OpenAttachment(_ context.Context, url string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	body, ok := f.downloads[url]
	if !ok {
		return nil, errors.New("unknown attachment url")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type fakePersonas struct {
	personas []persona.Persona
	listErr  error
}

func (f *fakePersonas) List(_ context.Context, _ string) ([]persona.Persona, error) {
	return f.personas, f.listErr
}

func (f *fakePersonas) Get(_ context.Context, _, name string) (persona.Persona, error) {
	for _, p := range f.personas {
		if p.Name == name {
			return p, nil
		}
	}
	return persona.Persona{}, persona.ErrPersonaNotFound
}

type fakeCollectives struct {
	coll collective.Collective
}

func (f *fakeCollectives) GetOrCreate(_ context.Context, ownerID string) (collective.Collective, error) {
	f.coll.OwnerID = ownerID
	return f.coll, nil
}

type fakeAutoproxy struct {
	resolved   *persona.Persona
	resolveErr error
	latched    []string
	cleared    int
}

func (f *fakeAutoproxy) ResolveAutoproxy(_ context.Context, _, _ string, _ []persona.Persona) (*persona.Persona, error) {
	return f.resolved, f.resolveErr
}

func (f *fakeAutoproxy) UpdateLatch(_ context.Context, _, guildID, personaName string) error {
	f.latched = append(f.latched, guildID+"/"+personaName)
	return nil
}

func (f *fakeAutoproxy) ClearLatch(_ context.Context, _, _ string) error {
	f.cleared++
	return nil
}

type fakeIdentities struct {
	rec      identity.Record
	threadID string
	err      error
	calls    []string
}

func (f *fakeIdentities) GetOrCreate(_ context.Context, channelID string) (identity.Record, string, error) {
	f.calls = append(f.calls, channelID)
	if f.err != nil {
		return identity.Record{}, "", f.err
	}
	rec := f.rec
	if rec.ChannelID == "" {
		rec.ChannelID = channelID
	}
	return rec, f.threadID, nil
}

type fakeLedger struct {
	records  map[string]ledger.Record
	putFails int
	getErr   error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: map[string]ledger.Record{}}
}

func (f *fakeLedger) Put(_ context.Context, rec ledger.Record) error {
	if f.putFails > 0 {
		f.putFails--
		return errors.New("ledger unavailable")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	f.records[rec.MessageID] = rec
	return nil
}

func (f *fakeLedger) Get(_ context.Context, messageID string) (ledger.Record, error) {
	if f.getErr != nil {
		return ledger.Record{}, f.getErr
	}
	rec, ok := f.records[messageID]
	if !ok {
		return ledger.Record{}, ledger.ErrRecordNotFound
	}
	return rec, nil
}

func (f *fakeLedger) Delete(_ context.Context, messageID string) error {
	delete(f.records, messageID)
	return nil
}

type fakeGuilds struct {
	g guild.Guild
}

func (f *fakeGuilds) GetOrCreate(_ context.Context, guildID string) (guild.Guild, error) {
	g := f.g
	g.ID = guildID
	return g, nil
}

func collectiveWithTag(tag string) collective.Collective {
	return collective.Collective{Tag: tag}
}
