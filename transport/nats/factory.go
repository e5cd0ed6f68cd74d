package nats

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/sofrecom/ragcore"
	"github.com/sofrecom/ragcore/vector"
)

// MakeEndpoints builds client-side endpoints for a remote ragcore service
// reachable over NATS under the given topic prefix.
func MakeEndpoints(nc *nats.Conn, prefix string) *ragcore.EndpointSet {
	return &ragcore.EndpointSet{
		Query:  QueryEndpoint(nc, prefix+".query"),
		Search: SearchEndpoint(nc, prefix+".search"),
		Count:  CountEndpoint(nc, prefix+".count"),
		Reset:  ResetEndpoint(nc, prefix+".reset"),
	}
}

func QueryEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(ragcore.QueryRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		msg, err := nc.Request(topic, data, nats.DefaultTimeout)
		if err != nil {
			return nil, err
		}

		if err := Error(msg); err != nil {
			return nil, err
		}

		var resp ragcore.Response
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			return nil, err
		}

		return &resp, nil
	}
}

func SearchEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(ragcore.SearchRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		msg, err := nc.Request(topic, data, nats.DefaultTimeout)
		if err != nil {
			return nil, err
		}

		if err := Error(msg); err != nil {
			return nil, err
		}

		var results []vector.SearchResult
		if err := json.Unmarshal(msg.Data, &results); err != nil {
			return nil, err
		}

		return results, nil
	}
}

func CountEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		msg, err := nc.Request(topic, nil, nats.DefaultTimeout)
		if err != nil {
			return nil, err
		}

		if err := Error(msg); err != nil {
			return nil, err
		}

		return strconv.Atoi(string(msg.Data))
	}
}

func ResetEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		msg, err := nc.Request(topic, nil, nats.DefaultTimeout)
		if err != nil {
			return nil, err
		}

		return nil, Error(msg)
	}
}

func Error(msg *nats.Msg) error {
	if msg == nil {
		return errors.New("nil message")
	}

	code := msg.Header.Get(micro.ErrorCodeHeader)
	if code == "" {
		return nil
	}

	description := msg.Header.Get(micro.ErrorHeader)
	if description == "" {
		description = "unknown error"
	}

	return errors.New(code + ":" + description)
}
