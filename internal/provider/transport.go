package provider

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

// Transport issues a single tile request. Implementations own connection
// handling and admission control; one call is one attempt.
type Transport interface {
	Issue(ctx context.Context, url string) (*Image, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, url string) (*Image, error)

func (f TransportFunc) Issue(ctx context.Context, url string) (*Image, error) {
	return f(ctx, url)
}

// Image is an encoded tile image as delivered by the transport.
type Image struct {
	Data        []byte
	ContentType string
}

// Decode decodes the image payload. PNG and JPEG are supported.
func (i *Image) Decode() (image.Image, string, error) {
	return image.Decode(bytes.NewReader(i.Data))
}
