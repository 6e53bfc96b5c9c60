package otel

import "go.opentelemetry.io/otel/attribute"

// Attribute keys shared by the relay instruments.
var (
	// AttrModel is the upstream model identifier
	AttrModel = attribute.Key("assistant.model")

	// AttrResponseStatus is ok, error, canceled or rejected
	AttrResponseStatus = attribute.Key("assistant.response.status")

	// AttrStatusCode is the HTTP status returned to the client
	AttrStatusCode = attribute.Key("http.response.status_code")

	// AttrToolName identifies the tool the model called
	AttrToolName = attribute.Key("assistant.tool.name")

	// AttrToolStatus is ok or error
	AttrToolStatus = attribute.Key("assistant.tool.status")

	// AttrTokenType is input or output
	AttrTokenType = attribute.Key("assistant.token_type")

	// AttrRoute is the gin route template
	AttrRoute = attribute.Key("http.route")
)
