package ragcore

import (
	"context"
	"errors"

	"github.com/go-kit/kit/endpoint"
)

type EndpointSet struct {
	Query        endpoint.Endpoint
	Search       endpoint.Endpoint
	Count        endpoint.Endpoint
	Reset        endpoint.Endpoint
	HandleAction endpoint.Endpoint
}

type QueryRequest struct {
	Query string `json:"query"`
}

func QueryEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(QueryRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.Query(ctx, req.Query)
	}
}

type SearchRequest struct {
	Query string `json:"query" form:"query"`
	K     int    `json:"k,omitempty" form:"k"`
}

func SearchEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(SearchRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.Retrieve(ctx, req.Query, req.K)
	}
}

func CountEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return svc.Count(ctx)
	}
}

func ResetEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return nil, svc.Reset(ctx)
	}
}

func HandleActionEndpoint(d *Dispatcher) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(ActionRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return d.Dispatch(ctx, req)
	}
}
