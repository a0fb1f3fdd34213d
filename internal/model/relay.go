// Package model defines shared types for the relay.
package model

// Upstream identifies a third-party provider the relay forwards to.
type Upstream string

// Known upstreams. The values double as metric labels.
const (
	UpstreamOpenWeather Upstream = "openweather"
	UpstreamNews        Upstream = "news"
)

// Defaults applied to inbound queries when a parameter is absent.
const (
	DefaultUnits   = "metric"
	DefaultCountry = "in"
	DefaultLang    = "en"
	DefaultCount   = 10
)

// WeatherQuery is the client-visible input of /weather and /forecast.
type WeatherQuery struct {
	City  string
	Units string
}

// NewsQuery is the client-visible input of /news.
type NewsQuery struct {
	Topic   string
	Country string
	Lang    string
	Count   int
}

// UpstreamResponse is a fully buffered upstream reply, relayed to the client
// without modification.
type UpstreamResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}
