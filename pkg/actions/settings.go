package actions

import (
	"context"
	"time"

	"github.com/odvcencio/parley/pkg/bus"
	"github.com/odvcencio/parley/pkg/logging"
	"github.com/odvcencio/parley/pkg/schema"
	"github.com/odvcencio/parley/pkg/store"
)

// LoadSettings fetches the application settings. Read-path failures
// degrade to the current value plus a recorded error.
func (a *Actions) LoadSettings(ctx context.Context) error {
	done := a.begin(store.OpSettings)
	defer done()

	s, err := a.client.GetSettings(ctx)
	if err != nil {
		a.store.SetError(store.OpSettings, err.Error())
		a.logger.Error(logging.CategorySettings, "load_failed", err.Error(), nil)
		return err
	}

	a.store.Settings.Set(s)
	return nil
}

// SaveSettings writes the application settings, reloads them so the
// store reflects what the server persisted, and broadcasts a
// settings-saved event. Anything that cares about title generation
// (the batch processor, list views) subscribes to the bus instead of
// being called directly, which keeps the settings surface and the
// conversation list decoupled.
func (a *Actions) SaveSettings(ctx context.Context, s schema.Settings) error {
	done := a.begin(store.OpSettings)
	defer done()

	prev := a.store.Settings.Get()

	if err := a.client.SaveSettings(ctx, s); err != nil {
		a.store.SetError(store.OpSettings, err.Error())
		a.logger.Error(logging.CategorySettings, "save_failed", err.Error(), nil)
		return err
	}

	if err := a.LoadSettings(ctx); err != nil {
		// The write went through; the stale read is not fatal.
		a.logger.Warn(logging.CategorySettings, "reload_failed", err.Error(), nil)
	}

	modelChanged := s.CentralModel != "" && s.CentralModel != prev.CentralModel
	promptChanged := s.TitleGenerationPrompt != prev.TitleGenerationPrompt

	a.publish(ctx, bus.SubjectSettingsSaved, bus.SettingsSavedEvent{
		CentralModel:   s.CentralModel,
		ModelChanged:   modelChanged,
		PromptChanged:  promptChanged,
		SavedAt:        time.Now(),
		TriggerRefresh: modelChanged || promptChanged,
	})

	a.logger.Info(logging.CategorySettings, "saved", "", map[string]any{
		"model_changed":  modelChanged,
		"prompt_changed": promptChanged,
	})
	return nil
}
