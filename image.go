package semcache

import (
	"context"
	"fmt"

	"github.com/ferro-labs/semcache/internal/synth"
	"github.com/ferro-labs/semcache/normalize"
	"github.com/ferro-labs/semcache/providers"
)

// GenerateImage returns a generated image. Cached images are resized to the
// requested size and returned inline (b64_json) or written through the
// adapter's ImageWriter (url). Live url answers are downloaded and stored
// as base64.
func (a *Adapter) GenerateImage(ctx context.Context, req providers.ImageRequest) (*providers.ImageResponse, error) {
	nreq, err := normalize.Image(req)
	if err != nil {
		return nil, err
	}
	req.Size = nreq.Image.Size
	req.ResponseFormat = nreq.Image.ResponseFormat
	return serve(ctx, a, nreq,
		func(r synth.Result) *providers.ImageResponse { return r.Image },
		func(ctx context.Context) (*providers.ImageResponse, error) {
			ip, ok := a.provider.(providers.ImageProvider)
			if !ok {
				return nil, fmt.Errorf("%w: %s cannot generate images", ErrNotSupported, a.provider.Name())
			}
			return ip.GenerateImage(ctx, req)
		},
	)
}
