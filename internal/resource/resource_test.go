package resource_test

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sockrest/internal/errors"
	"sockrest/internal/events"
	"sockrest/internal/protocol"
	"sockrest/internal/resource"
	"sockrest/internal/store"
)

type ticket struct {
	ID    uint64 `gorm:"primaryKey"`
	Title string `gorm:"size:200"`
	Owner string `gorm:"size:100"`
}

type ticketSerializer struct{}

type ticketInput struct {
	Title *string `json:"title" validate:"omitempty,min=1,max=200"`
	Owner *string `json:"owner" validate:"omitempty,max=100"`
}

func (ticketSerializer) Apply(data []byte, dst *ticket, partial bool) error {
	if len(data) == 0 {
		data = []byte("{}")
	}
	var in ticketInput
	if err := json.Unmarshal(data, &in); err != nil {
		return errors.Invalid("data", "Invalid JSON payload.")
	}

	var errs errors.ValidationErrors
	if !partial && in.Title == nil {
		errs = append(errs, errors.ValidationError{Field: "title", Message: "This field is required."})
	}
	if err := resource.ValidateStruct(&in); err != nil {
		var verrs errors.ValidationErrors
		if !errors.AsValidation(err, &verrs) {
			return err
		}
		errs = append(errs, verrs...)
	}
	if len(errs) > 0 {
		return errs
	}

	if in.Title != nil {
		dst.Title = *in.Title
	}
	if in.Owner != nil {
		dst.Owner = *in.Owner
	}
	return nil
}

func (ticketSerializer) Serialize(tk *ticket) any {
	return map[string]any{
		"id":    tk.ID,
		"title": tk.Title,
		"owner": tk.Owner,
	}
}

func (ticketSerializer) PrimaryKey(tk *ticket) uint64 {
	return tk.ID
}

type captureBroadcaster struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
}

func (b *captureBroadcaster) BroadcastEvent(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.payloads = append(b.payloads, payload)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(ctx context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type fixture struct {
	res       *resource.Resource[ticket]
	repo      *store.Repository[ticket]
	broadcast *captureBroadcaster
	publisher *capturePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(":memory:", nil, &ticket{})
	require.NoError(t, err)

	broadcast := &captureBroadcaster{}
	publisher := &capturePublisher{}
	repo := store.NewRepository[ticket](db)
	res := resource.New[ticket]("tickets", repo, ticketSerializer{},
		resource.WithBroadcaster[ticket](broadcast),
		resource.WithPublisher[ticket](publisher),
	)
	return &fixture{res: res, repo: repo, broadcast: broadcast, publisher: publisher}
}

func (f *fixture) dispatch(t *testing.T, raw string) *protocol.Response {
	t.Helper()
	resp, err := f.res.Actions().Dispatch(context.Background(), []byte(raw))
	require.NoError(t, err)
	require.NotNil(t, resp)
	return resp
}

func (f *fixture) seed(t *testing.T, title, owner string) ticket {
	t.Helper()
	tk := ticket{Title: title, Owner: owner}
	require.NoError(t, f.repo.Create(context.Background(), &tk))
	return tk
}

func TestCreateReturns201WithFullEntity(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatch(t, `{"action":"create","request_id":1,"data":{"title":"broken build","owner":"sam"}}`)

	assert.Equal(t, "create", resp.Action)
	assert.Equal(t, http.StatusCreated, resp.ResponseStatus)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, `1`, string(resp.RequestID))

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "broken build", data["title"])
	assert.Equal(t, "sam", data["owner"])
	assert.NotZero(t, data["id"])
}

func TestCreateMissingRequiredField(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatch(t, `{"action":"create","request_id":2,"data":{"owner":"sam"}}`)

	assert.Equal(t, http.StatusBadRequest, resp.ResponseStatus)
	assert.Equal(t, []string{"title: This field is required."}, resp.Errors)
	assert.Nil(t, resp.Data)

	count, err := f.repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRetrieve(t *testing.T) {
	f := newFixture(t)
	tk := f.seed(t, "flaky test", "kim")

	resp := f.dispatch(t, `{"action":"retrieve","request_id":3,"pk":1}`)

	assert.Equal(t, http.StatusOK, resp.ResponseStatus)
	data := resp.Data.(map[string]any)
	assert.Equal(t, tk.ID, data["id"])
	assert.Equal(t, "flaky test", data["title"])
}

func TestRetrieveUnknownPKReturnsNotFound(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatch(t, `{"action":"retrieve","request_id":4,"pk":100}`)

	assert.Equal(t, http.StatusNotFound, resp.ResponseStatus)
	assert.Equal(t, []string{"Not found"}, resp.Errors)
	assert.Nil(t, resp.Data)
}

func TestRetrieveWithoutPKReturnsNotFound(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "any", "kim")

	resp := f.dispatch(t, `{"action":"retrieve","request_id":5}`)

	assert.Equal(t, http.StatusNotFound, resp.ResponseStatus)
	assert.Equal(t, []string{"Not found"}, resp.Errors)
}

func TestListEmptyCollection(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatch(t, `{"action":"list","request_id":6}`)

	assert.Equal(t, http.StatusOK, resp.ResponseStatus)
	data, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Empty(t, data)

	payload, err := resp.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"data":[]`)
}

func TestListReturnsAllEntities(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "one", "a")
	f.seed(t, "two", "b")

	resp := f.dispatch(t, `{"action":"list","request_id":7}`)

	data := resp.Data.([]any)
	require.Len(t, data, 2)
	assert.Equal(t, "one", data[0].(map[string]any)["title"])
	assert.Equal(t, "two", data[1].(map[string]any)["title"])
}

func TestUpdatePreservesUnspecifiedFields(t *testing.T) {
	f := newFixture(t)
	tk := f.seed(t, "old title", "kim")

	resp := f.dispatch(t, `{"action":"update","request_id":8,"pk":1,"data":{"title":"new title"}}`)

	assert.Equal(t, http.StatusOK, resp.ResponseStatus)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "new title", data["title"])
	assert.Equal(t, "kim", data["owner"])

	loaded, err := f.repo.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "new title", loaded.Title)
	assert.Equal(t, "kim", loaded.Owner)
}

func TestUpdateMissingRequiredField(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "keep", "kim")

	resp := f.dispatch(t, `{"action":"update","request_id":9,"pk":1,"data":{"owner":"sam"}}`)

	assert.Equal(t, http.StatusBadRequest, resp.ResponseStatus)
	assert.Equal(t, []string{"title: This field is required."}, resp.Errors)
}

func TestUpdateUnknownPK(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatch(t, `{"action":"update","request_id":10,"pk":33,"data":{"title":"x"}}`)

	assert.Equal(t, http.StatusNotFound, resp.ResponseStatus)
	assert.Equal(t, []string{"Not found"}, resp.Errors)
}

func TestPatchAppliesPartialPayload(t *testing.T) {
	f := newFixture(t)
	tk := f.seed(t, "keep title", "kim")

	resp := f.dispatch(t, `{"action":"patch","request_id":11,"pk":1,"data":{"owner":"sam"}}`)

	assert.Equal(t, http.StatusOK, resp.ResponseStatus)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "keep title", data["title"])
	assert.Equal(t, "sam", data["owner"])

	loaded, err := f.repo.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "sam", loaded.Owner)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	tk := f.seed(t, "doomed", "kim")

	resp := f.dispatch(t, `{"action":"delete","request_id":12,"pk":1}`)

	assert.Equal(t, http.StatusNoContent, resp.ResponseStatus)
	assert.Empty(t, resp.Errors)
	assert.Nil(t, resp.Data)

	ok, err := f.repo.Exists(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteUnknownPK(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatch(t, `{"action":"delete","request_id":13,"pk":44}`)

	assert.Equal(t, http.StatusNotFound, resp.ResponseStatus)
	assert.Equal(t, []string{"Not found"}, resp.Errors)
}

func TestInvalidActionReturns400(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatch(t, `{"action":"explode","request_id":14}`)

	assert.Equal(t, "explode", resp.Action)
	assert.Equal(t, http.StatusBadRequest, resp.ResponseStatus)
	assert.Equal(t, []string{"Invalid action"}, resp.Errors)
}

func TestUndecodableMessageReturns400(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatch(t, `{broken`)

	assert.Equal(t, http.StatusBadRequest, resp.ResponseStatus)
	assert.Equal(t, []string{"Unable to decode message"}, resp.Errors)
	assert.Empty(t, resp.Action)
}

func TestRequestIDEchoedVerbatim(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatch(t, `{"action":"list","request_id":"my-token-7"}`)
	assert.Equal(t, `"my-token-7"`, string(resp.RequestID))
}

func TestMutationsNotifySubscribersAndPublisher(t *testing.T) {
	f := newFixture(t)

	f.dispatch(t, `{"action":"create","request_id":1,"data":{"title":"watched"}}`)
	f.dispatch(t, `{"action":"patch","request_id":2,"pk":1,"data":{"owner":"sam"}}`)
	f.dispatch(t, `{"action":"delete","request_id":3,"pk":1}`)

	require.Len(t, f.broadcast.payloads, 3)
	assert.Equal(t, []string{"tickets", "tickets", "tickets"}, f.broadcast.topics)

	var created map[string]any
	require.NoError(t, json.Unmarshal(f.broadcast.payloads[0], &created))
	assert.Equal(t, "create", created["action"])
	assert.Nil(t, created["request_id"])

	var deleted map[string]any
	require.NoError(t, json.Unmarshal(f.broadcast.payloads[2], &deleted))
	assert.Equal(t, "delete", deleted["action"])
	assert.Equal(t, map[string]any{"pk": float64(1)}, deleted["data"])

	require.Len(t, f.publisher.events, 3)
	assert.Equal(t, "tickets", f.publisher.events[0].Resource)
	assert.Equal(t, "create", f.publisher.events[0].Action)
	assert.Equal(t, "update", f.publisher.events[1].Action)
	assert.Equal(t, "delete", f.publisher.events[2].Action)
	assert.Equal(t, uint64(1), f.publisher.events[2].PK)
}

func TestReadsDoNotNotify(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "quiet", "kim")

	f.dispatch(t, `{"action":"list","request_id":1}`)
	f.dispatch(t, `{"action":"retrieve","request_id":2,"pk":1}`)

	assert.Empty(t, f.broadcast.payloads)
	assert.Empty(t, f.publisher.events)
}

type recordingSession struct {
	subscribed   []string
	unsubscribed []string
}

func (s *recordingSession) Subscribe(topic string)   { s.subscribed = append(s.subscribed, topic) }
func (s *recordingSession) Unsubscribe(topic string) { s.unsubscribed = append(s.unsubscribed, topic) }

func TestSubscribeBindsSessionToTopic(t *testing.T) {
	f := newFixture(t)
	sess := &recordingSession{}
	ctx := resource.WithSession(context.Background(), sess)

	resp, err := f.res.Actions().Dispatch(ctx, []byte(`{"action":"subscribe","request_id":1}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.ResponseStatus)
	assert.Equal(t, []string{"tickets"}, sess.subscribed)

	resp, err = f.res.Actions().Dispatch(ctx, []byte(`{"action":"unsubscribe","request_id":2}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.ResponseStatus)
	assert.Equal(t, []string{"tickets"}, sess.unsubscribed)
}

func TestSubscribeWithoutSessionFails(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatch(t, `{"action":"subscribe","request_id":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.ResponseStatus)
}

func TestRegistryActionsSorted(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, []string{
		"create", "delete", "list", "patch",
		"retrieve", "subscribe", "unsubscribe", "update",
	}, f.res.Actions().Actions())
	assert.Equal(t, "tickets", f.res.Actions().Resource())
	assert.Equal(t, "tickets", f.res.Name())
}
