package host

import (
	"context"
	"errors"
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"

	derrors "github.com/reglet-dev/dylib-host/domain/errors"
)

// Registry holds libraries by name. It is safe for concurrent use.
type Registry struct {
	loader *Loader
	libs   cmap.ConcurrentMap[string, *Library]
}

// NewRegistry creates a Registry that loads through loader.
// A nil loader uses DefaultLoader.
func NewRegistry(loader *Loader) *Registry {
	if loader == nil {
		loader = DefaultLoader
	}
	return &Registry{
		loader: loader,
		libs:   cmap.New[*Library](),
	}
}

// Load loads path under name. It fails with AlreadyLoadedError when the name is taken.
func (r *Registry) Load(ctx context.Context, name, path string) (*Library, error) {
	if existing, ok := r.libs.Get(name); ok {
		return nil, &derrors.AlreadyLoadedError{Name: name, Path: existing.Path()}
	}

	lib, err := r.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if !r.libs.SetIfAbsent(name, lib) {
		_ = lib.Unload(ctx)
		existing, _ := r.libs.Get(name)
		var held string
		if existing != nil {
			held = existing.Path()
		}
		return nil, &derrors.AlreadyLoadedError{Name: name, Path: held}
	}
	return lib, nil
}

// Get returns the library loaded under name.
func (r *Registry) Get(name string) (*Library, error) {
	lib, ok := r.libs.Get(name)
	if !ok {
		return nil, &derrors.NotLoadedError{Name: name}
	}
	return lib, nil
}

// Unload unloads and forgets the library loaded under name.
func (r *Registry) Unload(ctx context.Context, name string) error {
	lib, ok := r.libs.Pop(name)
	if !ok {
		return &derrors.NotLoadedError{Name: name}
	}
	return lib.Unload(ctx)
}

// Names returns the loaded names in sorted order.
func (r *Registry) Names() []string {
	names := r.libs.Keys()
	sort.Strings(names)
	return names
}

// Len returns the number of loaded libraries.
func (r *Registry) Len() int {
	return r.libs.Count()
}

// Close unloads every library.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, name := range r.Names() {
		if err := r.Unload(ctx, name); err != nil {
			var notLoaded *derrors.NotLoadedError
			if !errors.As(err, &notLoaded) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
