package httpx

import (
	"net/http"

	"github.com/Silverviles/nexar-hal/internal/core"
	apperrors "github.com/Silverviles/nexar-hal/internal/errors"
)

// ProviderHandlers serves the provider discovery endpoints.
type ProviderHandlers struct {
	Registry *core.ProviderRegistry
}

type providerInfo struct {
	Name string            `json:"name"`
	Kind core.ProviderKind `json:"kind"`
}

// List handles GET /api/providers.
func (h *ProviderHandlers) List(w http.ResponseWriter, r *http.Request) {
	names := h.Registry.Names()
	out := make([]providerInfo, 0, len(names))
	for _, name := range names {
		provider, ok := h.Registry.Get(name)
		if !ok {
			continue
		}
		out = append(out, providerInfo{Name: provider.Name(), Kind: provider.Kind()})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"providers": out})
}

// Devices handles GET /api/providers/{name}/devices.
func (h *ProviderHandlers) Devices(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	provider, ok := h.Registry.Get(name)
	if !ok {
		WriteAppError(w, apperrors.NotFoundf("provider %q not registered", name))
		return
	}
	devices, err := provider.ListDevices(r.Context())
	if err != nil {
		WriteAppError(w, apperrors.TransientWrap("list devices", err))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"provider": name, "devices": devices})
}
