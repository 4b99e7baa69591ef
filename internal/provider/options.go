package provider

import (
	"errors"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/styles/internal/credential"
	"github.com/jaennil/guide_helper/backend/styles/pkg/logger"
	"github.com/paulmach/orb"
)

const (
	DefaultURL      = "https://api.mapbox.com/styles/v1/"
	DefaultUsername = "mapbox"
	DefaultTileSize = 512
	DefaultCredit   = "© Mapbox © OpenStreetMap"

	// logical tile edge reported to the tiling scheme; the tilesize path
	// segment only selects the rendering size on the remote side
	logicalTileSize = 256
)

// Resource is a pre-built base endpoint: a URL plus query parameters that
// are carried onto every tile URL after the access token.
type Resource struct {
	URL   string
	Query url.Values
}

// Options are the constructor options of a Provider.
type Options struct {
	// URL is the service root. Ignored when Resource is set.
	URL      string
	Resource *Resource

	Username string
	StyleID  string

	// AccessToken wins over Credentials when both are set.
	AccessToken string
	Credentials credential.Source

	TileSize    int `validate:"gte=0,lte=4096"`
	ScaleFactor bool

	MinimumLevel *int `validate:"omitempty,gte=0,lte=30"`
	MaximumLevel *int `validate:"omitempty,gte=0,lte=30"`

	// Rectangle is informational only and never affects tile numbering.
	Rectangle *orb.Bound
	Credit    string
}

var validate = validator.New()

func (o Options) validate() error {
	if o.StyleID == "" {
		return ErrMissingStyleID
	}

	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ConfigError{Field: verrs[0].Field(), Err: err}
		}
		return &ConfigError{Field: "options", Err: err}
	}

	if o.MinimumLevel != nil && o.MaximumLevel != nil && *o.MinimumLevel > *o.MaximumLevel {
		return &ConfigError{Field: "MinimumLevel", Err: errors.New("must not exceed MaximumLevel")}
	}

	if o.Resource != nil && o.Resource.URL == "" {
		return &ConfigError{Field: "Resource", Err: errors.New("url is empty")}
	}

	return nil
}

// Option tunes provider behaviour that is not part of the tile source itself.
type Option func(*Provider)

func WithLogger(l logger.Logger) Option {
	return func(p *Provider) {
		p.logger = l
	}
}

// WithMaxAttempts caps the number of attempts per tile request regardless of
// what retry observers decide. Zero keeps attempts unbounded.
func WithMaxAttempts(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithRetryObserver subscribes fn to the provider's error event at construction.
func WithRetryObserver(fn RetryObserver) Option {
	return func(p *Provider) {
		p.errorEvent.Subscribe(fn)
	}
}
