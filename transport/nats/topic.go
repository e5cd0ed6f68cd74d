package nats

import (
	"github.com/nats-io/nats.go/micro"

	"github.com/sofrecom/ragcore"
)

func AddEndpoints(group micro.Group, endpoints ragcore.EndpointSet) {
	group.AddEndpoint("query", QueryHandler(endpoints.Query))
	group.AddEndpoint("search", SearchHandler(endpoints.Search))
	group.AddEndpoint("count", CountHandler(endpoints.Count))
	group.AddEndpoint("reset", ResetHandler(endpoints.Reset))
}
