package api

import (
	"errors"
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/feedeater/feedeater/pkg/module"
	"github.com/feedeater/feedeater/pkg/settings"
)

// listSettingsHandler handles GET /api/settings/:module. Returns the
// merged view of every declared setting: stored overrides where rows
// exist, manifest defaults otherwise. Secret values are redacted unless
// the caller presents the internal token.
func (s *Server) listSettingsHandler(c *echo.Context) error {
	if s.host == nil || s.settings == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "settings registry not ready")
	}
	moduleName := c.Param("module")

	manifest, err := s.host.ManifestFor(moduleName)
	if err != nil {
		return mapServiceError(err)
	}
	rows, err := s.settings.GetAll(c.Request().Context(), moduleName)
	if err != nil {
		return mapServiceError(err)
	}

	views := mergeSettingViews(manifest, rows)
	if !s.isInternal(c) {
		redactSettingViews(views)
	}
	return c.JSON(http.StatusOK, views)
}

// getSettingHandler handles GET /api/settings/:module/:key.
func (s *Server) getSettingHandler(c *echo.Context) error {
	if s.host == nil || s.settings == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "settings registry not ready")
	}
	moduleName := c.Param("module")
	key := c.Param("key")

	manifest, err := s.host.ManifestFor(moduleName)
	if err != nil {
		return mapServiceError(err)
	}

	row, err := s.settings.Get(c.Request().Context(), moduleName, key)
	switch {
	case err == nil:
		view := settingView{Key: row.Key, Value: row.Value, IsSecret: row.IsSecret, Source: "override"}
		if view.IsSecret && !s.isInternal(c) {
			view.Value = nil
		}
		return c.JSON(http.StatusOK, view)
	case errors.Is(err, settings.ErrNotFound):
		if decl, ok := declFor(manifest, key); ok {
			view := defaultView(decl)
			if view.IsSecret && !s.isInternal(c) {
				view.Value = nil
			}
			return c.JSON(http.StatusOK, view)
		}
		return mapServiceError(err)
	default:
		return mapServiceError(err)
	}
}

// putSettingHandler handles PUT /api/settings/:module/:key. Only keys
// the module's manifest declares are writable.
func (s *Server) putSettingHandler(c *echo.Context) error {
	if s.host == nil || s.settings == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "settings registry not ready")
	}
	moduleName := c.Param("module")
	key := c.Param("key")

	var req putSettingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	manifest, err := s.host.ManifestFor(moduleName)
	if err != nil {
		return mapServiceError(err)
	}
	decl, ok := declFor(manifest, key)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("module %s does not declare setting %q", moduleName, key))
	}

	isSecret := decl.Type == module.SettingSecret
	if req.IsSecret != nil {
		isSecret = *req.IsSecret
	}
	if err := s.settings.Put(c.Request().Context(), moduleName, key, req.Value, isSecret); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// putSettingsBulkHandler handles PUT /api/settings/:module with an
// array body. The batch is validated against the manifest up front so a
// typo rejects the whole request instead of half-applying it.
func (s *Server) putSettingsBulkHandler(c *echo.Context) error {
	if s.host == nil || s.settings == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "settings registry not ready")
	}
	moduleName := c.Param("module")

	var items []putSettingsBulkItem
	if err := c.Bind(&items); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(items) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "empty settings batch")
	}

	manifest, err := s.host.ManifestFor(moduleName)
	if err != nil {
		return mapServiceError(err)
	}
	for _, item := range items {
		if item.Key == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "setting key is required")
		}
		if _, ok := declFor(manifest, item.Key); !ok {
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("module %s does not declare setting %q", moduleName, item.Key))
		}
	}

	ctx := c.Request().Context()
	for _, item := range items {
		decl, _ := declFor(manifest, item.Key)
		isSecret := decl.Type == module.SettingSecret
		if item.IsSecret != nil {
			isSecret = *item.IsSecret
		}
		if err := s.settings.Put(ctx, moduleName, item.Key, item.Value, isSecret); err != nil {
			return mapServiceError(err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func declFor(m module.Manifest, key string) (module.SettingDecl, bool) {
	for _, decl := range m.Settings {
		if decl.Key == key {
			return decl, true
		}
	}
	return module.SettingDecl{}, false
}

func defaultView(decl module.SettingDecl) settingView {
	view := settingView{
		Key:      decl.Key,
		IsSecret: decl.Type == module.SettingSecret,
		Source:   "default",
	}
	if decl.Default != "" {
		v := decl.Default
		view.Value = &v
	}
	return view
}

// mergeSettingViews lays stored rows over manifest declarations.
// Declared settings keep manifest order; undeclared rows (left behind
// by an older manifest) are appended so operators can still see them.
func mergeSettingViews(m module.Manifest, rows []settings.Setting) []settingView {
	byKey := make(map[string]settings.Setting, len(rows))
	for _, row := range rows {
		byKey[row.Key] = row
	}

	views := make([]settingView, 0, len(m.Settings))
	for _, decl := range m.Settings {
		if row, ok := byKey[decl.Key]; ok {
			views = append(views, settingView{Key: row.Key, Value: row.Value, IsSecret: row.IsSecret, Source: "override"})
			delete(byKey, decl.Key)
			continue
		}
		views = append(views, defaultView(decl))
	}
	for _, row := range rows {
		if _, ok := byKey[row.Key]; ok {
			views = append(views, settingView{Key: row.Key, Value: row.Value, IsSecret: row.IsSecret, Source: "override"})
		}
	}
	return views
}

func redactSettingViews(views []settingView) {
	for i := range views {
		if views[i].IsSecret {
			views[i].Value = nil
		}
	}
}
