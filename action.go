package ragcore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Action names, as referenced by the dialogue engine's domain.
const (
	ActionRouter          = "action_router"
	ActionRAGQuery        = "action_rag_query"
	ActionCheckConfidence = "action_check_confidence"
	ActionDefaultFallback = "action_default_fallback"
)

// Dialogue-engine event types (Rasa action-server wire format).
const (
	EventSlot     = "slot"
	EventFollowup = "followup"
	EventRewind   = "rewind"
)

type Intent struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type LatestMessage struct {
	Text   string `json:"text"`
	Intent Intent `json:"intent"`
}

type Tracker struct {
	SenderID      string         `json:"sender_id"`
	Slots         map[string]any `json:"slots"`
	LatestMessage LatestMessage  `json:"latest_message"`
}

// ActionRequest is one turn handed over by the dialogue engine: the raw
// utterance, the classifier's verdict, and the conversation slots.
type ActionRequest struct {
	NextAction string  `json:"next_action"`
	SenderID   string  `json:"sender_id"`
	Tracker    Tracker `json:"tracker"`
}

type Event struct {
	Event string `json:"event"`
	Name  string `json:"name,omitempty"`
	Value any    `json:"value,omitempty"`
}

func SlotSet(name string, value any) Event {
	return Event{Event: EventSlot, Name: name, Value: value}
}

func Followup(action string) Event {
	return Event{Event: EventFollowup, Name: action}
}

type BotMessage struct {
	Text string `json:"text"`
}

// ActionResponse carries slot updates, bot messages, and an optional
// directive naming the next action to execute.
type ActionResponse struct {
	Events    []Event      `json:"events"`
	Responses []BotMessage `json:"responses"`
}

func (r *ActionResponse) say(text string) {
	r.Responses = append(r.Responses, BotMessage{Text: text})
}

// Dispatcher executes dialogue actions against the RAG service. It holds the
// only cross-turn state of the core: the per-conversation fallback streaks.
type Dispatcher struct {
	svc       Service
	router    Router
	fallbacks *FallbackTracker
	log       *zap.Logger
}

func NewDispatcher(svc Service, router Router) *Dispatcher {
	log := zap.L().With(
		zap.String("service", "ragcore"),
		zap.String("component", "dispatcher"),
	)

	return &Dispatcher{
		svc:       svc,
		router:    router,
		fallbacks: NewFallbackTracker(),
		log:       log,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req ActionRequest) (*ActionResponse, error) {
	sender := req.SenderID
	if sender == "" {
		sender = req.Tracker.SenderID
	}

	switch req.NextAction {
	case ActionRouter:
		return d.route(sender, req.Tracker), nil

	case ActionCheckConfidence:
		return d.checkConfidence(req.Tracker), nil

	case ActionRAGQuery:
		return d.ragQuery(ctx, sender, req.Tracker), nil

	case ActionDefaultFallback:
		return d.fallback(sender, req.Tracker), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, req.NextAction)
	}
}

// route sends low-confidence turns through the RAG pipeline and lets the
// primary dialogue policy keep the rest.
func (d *Dispatcher) route(sender string, tracker Tracker) *ActionResponse {
	confidence := tracker.LatestMessage.Intent.Confidence

	log := d.log.With(
		zap.String("action", ActionRouter),
		zap.String("sender_id", sender),
		zap.String("intent", tracker.LatestMessage.Intent.Name),
		zap.Float64("confidence", confidence),
		zap.Float64("threshold", d.router.Threshold),
	)

	resp := &ActionResponse{
		Events: []Event{SlotSet("nlu_confidence", confidence)},
	}

	if d.router.ShouldRetrieve(confidence) {
		log.Info("low confidence, routing to rag")

		resp.say(SearchingMessage)
		resp.Events = append(resp.Events, Followup(ActionRAGQuery))

		return resp
	}

	log.Info("high confidence, using standard response")

	// A confidently handled intent ends any fallback streak.
	d.fallbacks.Reset(sender)

	return resp
}

func (d *Dispatcher) checkConfidence(tracker Tracker) *ActionResponse {
	confidence := tracker.LatestMessage.Intent.Confidence

	topic := "standard"
	if d.router.ShouldRetrieve(confidence) {
		topic = "rag"
	}

	return &ActionResponse{
		Events: []Event{
			SlotSet("nlu_confidence", confidence),
			SlotSet("current_topic", topic),
		},
	}
}

func (d *Dispatcher) ragQuery(ctx context.Context, sender string, tracker Tracker) *ActionResponse {
	query := tracker.LatestMessage.Text

	log := d.log.With(
		zap.String("action", ActionRAGQuery),
		zap.String("sender_id", sender),
		zap.String("message", truncate(query, 100)),
	)

	response, err := d.svc.Query(ctx, query)
	if err != nil {
		// The turn degrades instead of crashing: the user gets a generic
		// technical-difficulty reply and the error stays in the logs.
		log.Error(err.Error())

		resp := &ActionResponse{
			Events: []Event{SlotSet("rag_response", nil)},
		}
		resp.say(TechnicalIssueAnswer)

		return resp
	}

	resp := &ActionResponse{
		Events: []Event{
			SlotSet("rag_response", response.Answer),
			SlotSet("rag_context", response.ContextUsed),
		},
	}

	resp.say(response.Answer)

	if len(response.Sources) > 0 && response.Confidence > 0.6 {
		names := make([]string, 0, 3)
		for _, src := range response.Sources {
			names = append(names, src.Source)
			if len(names) == 3 {
				break
			}
		}

		resp.say("📚 Sources: " + strings.Join(names, ", "))
	}

	log.Info("rag query handled",
		zap.Float64("confidence", response.Confidence),
		zap.Bool("grounded", response.Grounded),
		zap.Float64("duration_ms", response.DurationMS),
	)

	return resp
}

// fallback retries the RAG pipeline for the first unhandled turns, then
// offers a human after a streak of them.
func (d *Dispatcher) fallback(sender string, tracker Tracker) *ActionResponse {
	log := d.log.With(
		zap.String("action", ActionDefaultFallback),
		zap.String("sender_id", sender),
		zap.String("message", truncate(tracker.LatestMessage.Text, 100)),
	)

	streak := d.fallbacks.Bump(sender)

	log.Warn("fallback triggered", zap.Int("streak", streak))

	resp := &ActionResponse{}

	if streak >= MaxFallbackStreak {
		resp.say(EscalateAnswer)
		resp.Events = append(resp.Events, Event{Event: EventRewind})

		return resp
	}

	resp.say(FallbackSearchingMessage)
	resp.Events = append(resp.Events, Followup(ActionRAGQuery))

	return resp
}
