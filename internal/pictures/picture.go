package pictures

import (
	"context"
	"fmt"
	"html"
	"path"
	"strings"
)

const defaultAvatarSize = 32

// Asset is what a Resolver knows about a stored picture.
type Asset struct {
	URL      string
	FileName string
}

// Resolver maps a picture handle to its public asset.
type Resolver interface {
	Resolve(ctx context.Context, id int64) (Asset, error)
}

// Picture references one uploaded image. The zero value is the invalid
// sentinel used for "no picture".
type Picture struct {
	id       int64
	resolver Resolver

	resolved bool
	asset    Asset
}

type PictureData struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	PublicURL string `json:"public_url"`
	Type      string `json:"type"`
}

func NewPicture(id int64, resolver Resolver) *Picture {
	return &Picture{id: id, resolver: resolver}
}

func (p *Picture) ID() int64 {
	return p.id
}

func (p *Picture) IsValid() bool {
	return p.id > 0
}

// Source returns the public URL, resolving it once per instance.
func (p *Picture) Source(ctx context.Context) string {
	return p.resolve(ctx).URL
}

// FileName returns the base name of the stored file.
func (p *Picture) FileName(ctx context.Context) string {
	name := p.resolve(ctx).FileName
	if name == "" {
		return ""
	}
	return path.Base(name)
}

// FileType returns the file extension without the leading dot.
func (p *Picture) FileType(ctx context.Context) string {
	return strings.TrimPrefix(path.Ext(p.FileName(ctx)), ".")
}

// Avatar renders the picture as an avatar img fragment of the given pixel size.
func (p *Picture) Avatar(ctx context.Context, size int) string {
	if size <= 0 {
		size = defaultAvatarSize
	}
	return fmt.Sprintf("<img alt='avatar' src='%s' class='avatar avatar-%d photo' height='%d' width='%d' />",
		html.EscapeString(p.Source(ctx)),
		size,
		size,
		size,
	)
}

func (p *Picture) Data(ctx context.Context) PictureData {
	return PictureData{
		ID:        p.id,
		Name:      p.FileName(ctx),
		PublicURL: p.Source(ctx),
		Type:      p.FileType(ctx),
	}
}

// resolve fails closed: invalid pictures, a missing resolver and resolver
// errors all yield an empty asset. Failures are not memoized.
func (p *Picture) resolve(ctx context.Context) Asset {
	if p.resolved {
		return p.asset
	}
	if !p.IsValid() || p.resolver == nil {
		return Asset{}
	}

	asset, err := p.resolver.Resolve(ctx, p.id)
	if err != nil {
		return Asset{}
	}

	p.asset = asset
	p.resolved = true
	return p.asset
}
