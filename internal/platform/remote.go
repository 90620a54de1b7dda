package platform

import "context"

// PlatformMetadataProvider delegates every call to the platform bridge.
type PlatformMetadataProvider struct {
	bridge Bridge
}

func NewPlatformMetadataProvider(bridge Bridge) *PlatformMetadataProvider {
	return &PlatformMetadataProvider{bridge: bridge}
}

func (p *PlatformMetadataProvider) FileInfo(ctx context.Context, path string) (*FileInfo, error) {
	return p.bridge.FileInfo(ctx, path)
}

// OpenInstallable starts the package installer. The helper ignores paths
// that do not exist.
func (p *PlatformMetadataProvider) OpenInstallable(ctx context.Context, path string) error {
	return p.bridge.InstallPackage(ctx, path)
}
