package ragcore

import (
	"context"
	"errors"

	"github.com/sofrecom/ragcore/vector"
)

// ProxyMiddleware exposes a remote EndpointSet (e.g. over NATS) as a local
// Service. Ingestion stays local to the node holding the files.
func ProxyMiddleware(endpoints *EndpointSet) ServiceMiddleware {
	return func(next Service) Service {
		return &proxyMiddleware{
			endpoints: endpoints,
		}
	}
}

type proxyMiddleware struct {
	endpoints *EndpointSet
}

func (mw *proxyMiddleware) Close() error {
	return nil
}

func (mw *proxyMiddleware) Query(ctx context.Context, query string) (*Response, error) {
	resp, err := mw.endpoints.Query(ctx, QueryRequest{Query: query})
	if err != nil {
		return nil, err
	}

	response, ok := resp.(*Response)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return response, nil
}

func (mw *proxyMiddleware) Retrieve(ctx context.Context, query string, topK int) ([]vector.SearchResult, error) {
	req := SearchRequest{
		Query: query,
		K:     topK,
	}

	resp, err := mw.endpoints.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	results, ok := resp.([]vector.SearchResult)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return results, nil
}

func (mw *proxyMiddleware) IngestFile(ctx context.Context, path string) (int, error) {
	return 0, ErrNotImplemented
}

func (mw *proxyMiddleware) IngestDirectory(ctx context.Context, path string) (int, error) {
	return 0, ErrNotImplemented
}

func (mw *proxyMiddleware) Count(ctx context.Context) (int, error) {
	resp, err := mw.endpoints.Count(ctx, nil)
	if err != nil {
		return 0, err
	}

	count, ok := resp.(int)
	if !ok {
		return 0, errors.New("invalid response type")
	}

	return count, nil
}

func (mw *proxyMiddleware) Reset(ctx context.Context) error {
	_, err := mw.endpoints.Reset(ctx, nil)
	return err
}
