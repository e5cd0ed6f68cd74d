package ragcore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofrecom/ragcore/vector"
)

type stubService struct {
	resp      *Response
	err       error
	lastQuery string
}

func (s *stubService) Close() error { return nil }

func (s *stubService) Query(ctx context.Context, query string) (*Response, error) {
	s.lastQuery = query

	if s.err != nil {
		return nil, s.err
	}

	return s.resp, nil
}

func (s *stubService) Retrieve(ctx context.Context, query string, topK int) ([]vector.SearchResult, error) {
	return nil, nil
}

func (s *stubService) IngestFile(ctx context.Context, path string) (int, error) {
	return 0, nil
}

func (s *stubService) IngestDirectory(ctx context.Context, path string) (int, error) {
	return 0, nil
}

func (s *stubService) Count(ctx context.Context) (int, error) { return 0, nil }

func (s *stubService) Reset(ctx context.Context) error { return nil }

func trackerWith(text string, intent string, confidence float64) Tracker {
	return Tracker{
		SenderID: "alice",
		LatestMessage: LatestMessage{
			Text: text,
			Intent: Intent{
				Name:       intent,
				Confidence: confidence,
			},
		},
	}
}

func request(action string, tracker Tracker) ActionRequest {
	return ActionRequest{
		NextAction: action,
		SenderID:   tracker.SenderID,
		Tracker:    tracker,
	}
}

func findEvent(events []Event, kind, name string) (Event, bool) {
	for _, e := range events {
		if e.Event == kind && e.Name == name {
			return e, true
		}
	}

	return Event{}, false
}

func TestDispatchUnknownAction(t *testing.T) {
	d := NewDispatcher(&stubService{}, Router{Threshold: 0.75})

	_, err := d.Dispatch(context.Background(), request("action_listen", Tracker{}))
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestRouteLowConfidence(t *testing.T) {
	assert := assert.New(t)

	d := NewDispatcher(&stubService{}, Router{Threshold: 0.75})

	resp, err := d.Dispatch(context.Background(),
		request(ActionRouter, trackerWith("horaires ?", "nlu_fallback", 0.40)))
	require.NoError(t, err)

	slot, ok := findEvent(resp.Events, EventSlot, "nlu_confidence")
	require.True(t, ok)
	assert.Equal(0.40, slot.Value)

	followup, ok := findEvent(resp.Events, EventFollowup, ActionRAGQuery)
	require.True(t, ok)
	assert.Equal(EventFollowup, followup.Event)

	require.Len(t, resp.Responses, 1)
	assert.Equal(SearchingMessage, resp.Responses[0].Text)
}

func TestRouteHighConfidence(t *testing.T) {
	assert := assert.New(t)

	d := NewDispatcher(&stubService{}, Router{Threshold: 0.75})

	resp, err := d.Dispatch(context.Background(),
		request(ActionRouter, trackerWith("bonjour", "greet", 0.95)))
	require.NoError(t, err)

	_, ok := findEvent(resp.Events, EventFollowup, ActionRAGQuery)
	assert.False(ok)
	assert.Empty(resp.Responses)
}

func TestRouteHighConfidenceResetsFallbackStreak(t *testing.T) {
	d := NewDispatcher(&stubService{}, Router{Threshold: 0.75})
	ctx := context.Background()

	fallback := request(ActionDefaultFallback, trackerWith("???", "nlu_fallback", 0.1))

	_, err := d.Dispatch(ctx, fallback)
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, fallback)
	require.NoError(t, err)

	_, err = d.Dispatch(ctx, request(ActionRouter, trackerWith("bonjour", "greet", 0.95)))
	require.NoError(t, err)

	// The streak starts over: the third fallback no longer escalates.
	resp, err := d.Dispatch(ctx, fallback)
	require.NoError(t, err)

	require.Len(t, resp.Responses, 1)
	assert.Equal(t, FallbackSearchingMessage, resp.Responses[0].Text)
}

func TestCheckConfidenceTopic(t *testing.T) {
	assert := assert.New(t)

	d := NewDispatcher(&stubService{}, Router{Threshold: 0.75})
	ctx := context.Background()

	resp, err := d.Dispatch(ctx,
		request(ActionCheckConfidence, trackerWith("horaires ?", "nlu_fallback", 0.40)))
	require.NoError(t, err)

	topic, ok := findEvent(resp.Events, EventSlot, "current_topic")
	require.True(t, ok)
	assert.Equal("rag", topic.Value)

	resp, err = d.Dispatch(ctx,
		request(ActionCheckConfidence, trackerWith("bonjour", "greet", 0.95)))
	require.NoError(t, err)

	topic, ok = findEvent(resp.Events, EventSlot, "current_topic")
	require.True(t, ok)
	assert.Equal("standard", topic.Value)
}

func TestRAGQueryWithSources(t *testing.T) {
	assert := assert.New(t)

	svc := &stubService{
		resp: &Response{
			Answer:     "Le support est ouvert de 9h à 18h.",
			Confidence: 0.82,
			Grounded:   true,
			Sources: []Source{
				{ID: "a_0", Source: "a.txt", Relevance: 0.9},
				{ID: "b_0", Source: "b.txt", Relevance: 0.8},
				{ID: "c_0", Source: "c.txt", Relevance: 0.8},
				{ID: "d_0", Source: "d.txt", Relevance: 0.8},
			},
			ContextUsed: "[Source 1: a.txt]",
		},
	}

	d := NewDispatcher(svc, Router{Threshold: 0.75})

	resp, err := d.Dispatch(context.Background(),
		request(ActionRAGQuery, trackerWith("Quels sont les horaires ?", "nlu_fallback", 0.40)))
	require.NoError(t, err)

	assert.Equal("Quels sont les horaires ?", svc.lastQuery)

	require.Len(t, resp.Responses, 2)
	assert.Equal(svc.resp.Answer, resp.Responses[0].Text)

	// At most three sources are cited.
	assert.Equal("📚 Sources: a.txt, b.txt, c.txt", resp.Responses[1].Text)

	answer, ok := findEvent(resp.Events, EventSlot, "rag_response")
	require.True(t, ok)
	assert.Equal(svc.resp.Answer, answer.Value)

	_, ok = findEvent(resp.Events, EventSlot, "rag_context")
	assert.True(ok)
}

func TestRAGQueryLowConfidenceOmitsSources(t *testing.T) {
	svc := &stubService{
		resp: &Response{
			Answer:     NoContextAnswer,
			Confidence: 0.3,
			Sources:    []Source{{ID: "a_0", Source: "a.txt", Relevance: 0.3}},
		},
	}

	d := NewDispatcher(svc, Router{Threshold: 0.75})

	resp, err := d.Dispatch(context.Background(),
		request(ActionRAGQuery, trackerWith("horaires ?", "nlu_fallback", 0.40)))
	require.NoError(t, err)

	require.Len(t, resp.Responses, 1)
	assert.Equal(t, NoContextAnswer, resp.Responses[0].Text)
}

func TestRAGQueryDegradesOnError(t *testing.T) {
	assert := assert.New(t)

	svc := &stubService{err: errors.New("provider down")}
	d := NewDispatcher(svc, Router{Threshold: 0.75})

	resp, err := d.Dispatch(context.Background(),
		request(ActionRAGQuery, trackerWith("horaires ?", "nlu_fallback", 0.40)))

	// A pipeline failure degrades the turn, it does not fail the webhook.
	require.NoError(t, err)

	require.Len(t, resp.Responses, 1)
	assert.Equal(TechnicalIssueAnswer, resp.Responses[0].Text)

	slot, ok := findEvent(resp.Events, EventSlot, "rag_response")
	require.True(t, ok)
	assert.Nil(slot.Value)
}

func TestFallbackEscalatesAfterStreak(t *testing.T) {
	assert := assert.New(t)

	d := NewDispatcher(&stubService{}, Router{Threshold: 0.75})
	ctx := context.Background()

	req := request(ActionDefaultFallback, trackerWith("???", "nlu_fallback", 0.1))

	for i := 0; i < MaxFallbackStreak-1; i++ {
		resp, err := d.Dispatch(ctx, req)
		require.NoError(t, err)

		require.Len(t, resp.Responses, 1)
		assert.Equal(FallbackSearchingMessage, resp.Responses[0].Text)

		_, ok := findEvent(resp.Events, EventFollowup, ActionRAGQuery)
		assert.True(ok)
	}

	resp, err := d.Dispatch(ctx, req)
	require.NoError(t, err)

	require.Len(t, resp.Responses, 1)
	assert.Equal(EscalateAnswer, resp.Responses[0].Text)

	rewound := false
	for _, e := range resp.Events {
		if e.Event == EventRewind {
			rewound = true
		}
	}
	assert.True(rewound)
}
