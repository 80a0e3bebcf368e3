package env

import (
	"fmt"

	"github.com/rs/zerolog"
)

// undoStack records compensating actions for a creation in progress.
// Actions are pushed as their forward step succeeds and run in reverse
// order on rollback.
type undoStack struct {
	actions []undoAction
}

type undoAction struct {
	name string
	fn   func() error
}

func (u *undoStack) push(name string, fn func() error) {
	u.actions = append(u.actions, undoAction{name: name, fn: fn})
}

// rollback runs all recorded actions newest-first and returns primary,
// annotated when any compensating action itself failed. The annotation
// preserves primary as the wrapped error so callers still see its kind.
func (u *undoStack) rollback(primary error, log zerolog.Logger) error {
	var failed []string
	for i := len(u.actions) - 1; i >= 0; i-- {
		act := u.actions[i]
		if err := act.fn(); err != nil {
			log.Error().Err(err).Str("action", act.name).Msg("rollback action failed")
			failed = append(failed, fmt.Sprintf("%s: %v", act.name, err))
			continue
		}
		log.Debug().Str("action", act.name).Msg("rolled back")
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w (rollback incomplete: %v)", primary, failed)
	}
	return primary
}
